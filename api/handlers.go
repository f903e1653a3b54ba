/*
handlers.go - HTTP API handlers for the aid registry

PURPOSE:
  Exposes the registry via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the registry service and store. The ledger
  arithmetic never lives here: donation and delivery writes go through the
  registry so every transition is transactional.

ENDPOINTS:
  Products:
    GET    /api/products               List products with reconciled stock
    POST   /api/products               Create product (opening quantity)
    GET    /api/products/{id}          Get product
    PUT    /api/products/{id}          Update descriptive fields
    DELETE /api/products/{id}          Delete product
    GET    /api/products/{id}/verify   Compare stored vs history quantity
    POST   /api/products/{id}/rebuild  Repair stored quantity from history

  Donations:
    GET/POST /api/donations, GET/PUT/DELETE /api/donations/{id}

  Deliveries:
    GET/POST /api/deliveries, GET/PUT/DELETE /api/deliveries/{id}

  Families, members, handlers:
    CRUD under /api/families, /api/families/{id}/members, /api/handlers

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Reconciliation conflict (retryable)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public;
  deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - registry/service.go: Transactional lifecycle operations
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aidtrack/stock-engine/ledger"
	"github.com/aidtrack/stock-engine/registry"
	"github.com/aidtrack/stock-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Registry *registry.Service
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:    store,
		Registry: registry.New(store),
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products with their reconciled quantities.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i := range products {
		dtos[i] = productDTO(&products[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct creates a product with its opening quantity.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Category == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "category and type are required", nil)
		return
	}
	if req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must not be negative", nil)
		return
	}

	p := &ledger.Product{Category: req.Category, Type: req.Type, Quantity: req.Quantity}
	if err := h.Store.CreateProduct(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, productDTO(p))
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Store.GetProduct(r.Context(), ledger.ProductID(id))
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(p))
}

// UpdateProduct updates a product's descriptive fields. Quantity in the
// request body is ignored: stock is owned by the ledger.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := &ledger.Product{ID: ledger.ProductID(id), Category: req.Category, Type: req.Type}
	if err := h.Store.SaveProduct(r.Context(), p); err != nil {
		writeDomainError(w, "Failed to update product", err)
		return
	}

	updated, err := h.Store.GetProduct(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(updated))
}

// DeleteProduct removes a product. Donations pointing at it are detached,
// deliveries cascade.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteProduct(r.Context(), ledger.ProductID(id)); err != nil {
		writeDomainError(w, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyProduct compares the stored quantity with the event history.
func (h *Handler) VerifyProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.Registry.VerifyProduct(r.Context(), ledger.ProductID(id))
	if err != nil {
		writeDomainError(w, "Failed to verify product", err)
		return
	}
	writeJSON(w, http.StatusOK, verifyDTO(result))
}

// RebuildProduct repairs the stored quantity from the event history.
func (h *Handler) RebuildProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Registry.RebuildProduct(r.Context(), ledger.ProductID(id))
	if err != nil {
		writeDomainError(w, "Failed to rebuild product", err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(p))
}

// =============================================================================
// DONATION HANDLERS
// =============================================================================

// ListDonations returns all donations.
func (h *Handler) ListDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.Store.ListDonations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list donations", err)
		return
	}
	dtos := make([]DonationDTO, len(donations))
	for i := range donations {
		dtos[i] = donationDTO(&donations[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDonation records a donation and credits its product.
func (h *Handler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	var req DonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := req.toDomain(0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if err := h.Registry.CreateDonation(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to create donation", err)
		return
	}
	writeJSON(w, http.StatusCreated, donationDTO(d))
}

// GetDonation returns a single donation.
func (h *Handler) GetDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := h.Registry.GetDonation(r.Context(), ledger.EventID(id))
	if err != nil {
		writeDomainError(w, "Failed to get donation", err)
		return
	}
	writeJSON(w, http.StatusOK, donationDTO(d))
}

// UpdateDonation saves donation changes and reconciles the affected products.
func (h *Handler) UpdateDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req DonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := req.toDomain(ledger.EventID(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if err := h.Registry.UpdateDonation(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to update donation", err)
		return
	}
	writeJSON(w, http.StatusOK, donationDTO(d))
}

// DeleteDonation removes a donation and reverses its stock effect.
func (h *Handler) DeleteDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Registry.DeleteDonation(r.Context(), ledger.EventID(id)); err != nil {
		writeDomainError(w, "Failed to delete donation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// ListDeliveries returns all deliveries.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.Store.ListDeliveries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries", err)
		return
	}
	dtos := make([]DeliveryDTO, len(deliveries))
	for i := range deliveries {
		dtos[i] = deliveryDTO(&deliveries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDelivery records a delivery and debits its product.
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := req.toDomain(0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if err := h.Registry.CreateDelivery(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to create delivery", err)
		return
	}
	writeJSON(w, http.StatusCreated, deliveryDTO(d))
}

// GetDelivery returns a single delivery.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := h.Registry.GetDelivery(r.Context(), ledger.EventID(id))
	if err != nil {
		writeDomainError(w, "Failed to get delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryDTO(d))
}

// UpdateDelivery saves delivery changes and reconciles the affected products.
func (h *Handler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := req.toDomain(ledger.EventID(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if err := h.Registry.UpdateDelivery(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to update delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryDTO(d))
}

// DeleteDelivery removes a delivery and returns its quantity to stock.
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Registry.DeleteDelivery(r.Context(), ledger.EventID(id)); err != nil {
		writeDomainError(w, "Failed to delete delivery", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FAMILY HANDLERS
// =============================================================================

// ListFamilies returns all beneficiary families.
func (h *Handler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.Store.ListFamilies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list families", err)
		return
	}
	dtos := make([]FamilyDTO, len(families))
	for i := range families {
		dtos[i] = familyDTO(&families[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFamily registers a beneficiary family.
func (h *Handler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req FamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LastName == "" || req.FirstName == "" {
		writeError(w, http.StatusBadRequest, "last_name and first_name are required", nil)
		return
	}
	f := req.toRecord(0)
	if err := h.Store.SaveFamily(r.Context(), f); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create family", err)
		return
	}
	writeJSON(w, http.StatusCreated, familyDTO(f))
}

// GetFamily returns a single family.
func (h *Handler) GetFamily(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f, err := h.Store.GetFamily(r.Context(), ledger.FamilyID(id))
	if err != nil {
		writeDomainError(w, "Failed to get family", err)
		return
	}
	writeJSON(w, http.StatusOK, familyDTO(f))
}

// UpdateFamily saves family changes.
func (h *Handler) UpdateFamily(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req FamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	f := req.toRecord(ledger.FamilyID(id))
	if err := h.Store.SaveFamily(r.Context(), f); err != nil {
		writeDomainError(w, "Failed to update family", err)
		return
	}
	writeJSON(w, http.StatusOK, familyDTO(f))
}

// DeleteFamily removes a family with its members and delivery records.
func (h *Handler) DeleteFamily(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteFamily(r.Context(), ledger.FamilyID(id)); err != nil {
		writeDomainError(w, "Failed to delete family", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFamilyMembers returns a family's members.
func (h *Handler) ListFamilyMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	members, err := h.Store.ListFamilyMembers(r.Context(), ledger.FamilyID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = memberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFamilyMember attaches a member to a family.
func (h *Handler) CreateFamilyMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FirstName == "" || req.Relation == "" {
		writeError(w, http.StatusBadRequest, "first_name and relation are required", nil)
		return
	}

	exists, err := h.Store.FamilyExists(r.Context(), ledger.FamilyID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check family", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Family not found", nil)
		return
	}

	m := &sqlite.FamilyMember{
		FamilyID:     ledger.FamilyID(id),
		Relation:     req.Relation,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DayOfBirth:   req.DayOfBirth,
		Gender:       req.Gender,
		HealthStatus: req.HealthStatus,
		Notes:        req.Notes,
	}
	if err := h.Store.SaveFamilyMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, memberDTO(*m))
}

// DeleteFamilyMember removes a member record.
func (h *Handler) DeleteFamilyMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member id", err)
		return
	}
	if err := h.Store.DeleteFamilyMember(r.Context(), memberID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HANDLER (STAFF) HANDLERS
// =============================================================================

// ListHandlers returns all staff handlers.
func (h *Handler) ListHandlers(w http.ResponseWriter, r *http.Request) {
	handlers, err := h.Store.ListHandlers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list handlers", err)
		return
	}
	dtos := make([]HandlerDTO, len(handlers))
	for i, hd := range handlers {
		dtos[i] = handlerDTO(hd)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHandler registers a staff handler.
func (h *Handler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req HandlerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LastName == "" || req.FirstName == "" {
		writeError(w, http.StatusBadRequest, "last_name and first_name are required", nil)
		return
	}
	hd := &sqlite.Handler{
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		DayOfBirth:  req.DayOfBirth,
		Type:        req.Type,
		PhoneNumber: req.PhoneNumber,
	}
	if err := h.Store.SaveHandler(r.Context(), hd); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create handler", err)
		return
	}
	writeJSON(w, http.StatusCreated, handlerDTO(*hd))
}

// UpdateHandler saves handler changes.
func (h *Handler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req HandlerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	hd := &sqlite.Handler{
		ID:          id,
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		DayOfBirth:  req.DayOfBirth,
		Type:        req.Type,
		PhoneNumber: req.PhoneNumber,
	}
	if err := h.Store.SaveHandler(r.Context(), hd); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update handler", err)
		return
	}
	writeJSON(w, http.StatusOK, handlerDTO(*hd))
}

// DeleteHandler removes a handler record.
func (h *Handler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteHandler(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete handler", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// pathID parses the {id} route parameter; writes a 400 and returns false on
// garbage input.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses: missing records to
// 404, invalid input to 400, retryable conflicts to 409, the rest to 500.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}
