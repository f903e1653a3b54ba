/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the registry, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/aidtrack/stock-engine/ledger"
	"github.com/aidtrack/stock-engine/store/sqlite"
)

const dateFormat = "2006-01-02"

// =============================================================================
// PRODUCTS
// =============================================================================

// ProductDTO represents a product in API responses. Quantity is always the
// reconciled on-hand count.
type ProductDTO struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Quantity int64  `json:"quantity"`
}

// ProductRequest is the request to create or update a product. Quantity is
// honored only at creation (opening stock); afterwards the ledger owns it.
type ProductRequest struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Quantity int64  `json:"quantity,omitempty"`
}

func productDTO(p *ledger.Product) ProductDTO {
	return ProductDTO{
		ID:       int64(p.ID),
		Category: p.Category,
		Type:     p.Type,
		Quantity: p.Quantity,
	}
}

// VerifyDTO reports a product's stored versus history-derived quantity.
type VerifyDTO struct {
	ProductID  int64 `json:"product_id"`
	Stored     int64 `json:"stored"`
	Computed   int64 `json:"computed"`
	Drift      int64 `json:"drift"`
	Consistent bool  `json:"consistent"`
	Donations  int   `json:"donations"`
	Deliveries int   `json:"deliveries"`
}

func verifyDTO(r ledger.VerifyResult) VerifyDTO {
	return VerifyDTO{
		ProductID:  int64(r.Product),
		Stored:     r.Stored,
		Computed:   r.Computed,
		Drift:      r.Drift(),
		Consistent: r.Consistent(),
		Donations:  r.Donations,
		Deliveries: r.Deliveries,
	}
}

// =============================================================================
// DONATIONS / DELIVERIES
// =============================================================================

// DonationDTO represents a donation in API responses. ProductID is null for
// unattributed donations.
type DonationDTO struct {
	ID        int64  `json:"id"`
	Donor     string `json:"donor,omitempty"`
	ProductID *int64 `json:"product_id"`
	Date      string `json:"date,omitempty"`
	Quantity  int64  `json:"quantity"`
}

// DonationRequest is the request to create or update a donation.
type DonationRequest struct {
	Donor     string `json:"donor"`
	ProductID *int64 `json:"product_id"`
	Date      string `json:"date"`
	Quantity  int64  `json:"quantity"`
}

func donationDTO(d *ledger.Donation) DonationDTO {
	dto := DonationDTO{
		ID:       int64(d.ID),
		Donor:    d.Donor,
		Quantity: d.Quantity,
	}
	if d.Product != nil {
		p := int64(*d.Product)
		dto.ProductID = &p
	}
	if !d.Date.IsZero() {
		dto.Date = d.Date.Format(dateFormat)
	}
	return dto
}

func (r DonationRequest) toDomain(id ledger.EventID) (*ledger.Donation, error) {
	d := &ledger.Donation{
		ID:       id,
		Donor:    r.Donor,
		Quantity: r.Quantity,
	}
	if r.ProductID != nil {
		p := ledger.ProductID(*r.ProductID)
		d.Product = &p
	}
	if r.Date != "" {
		t, err := time.Parse(dateFormat, r.Date)
		if err != nil {
			return nil, err
		}
		d.Date = t
	}
	return d, nil
}

// DeliveryDTO represents a delivery in API responses.
type DeliveryDTO struct {
	ID            int64  `json:"id"`
	Occasion      string `json:"occasion,omitempty"`
	BeneficiaryID int64  `json:"beneficiary_id"`
	ProductID     int64  `json:"product_id"`
	Date          string `json:"date"`
	Quantity      int64  `json:"quantity"`
}

// DeliveryRequest is the request to create or update a delivery. Both the
// beneficiary family and the product are required references.
type DeliveryRequest struct {
	Occasion      string `json:"occasion"`
	BeneficiaryID int64  `json:"beneficiary_id"`
	ProductID     int64  `json:"product_id"`
	Date          string `json:"date"`
	Quantity      int64  `json:"quantity"`
}

func deliveryDTO(d *ledger.Delivery) DeliveryDTO {
	dto := DeliveryDTO{
		ID:            int64(d.ID),
		Occasion:      d.Occasion,
		BeneficiaryID: int64(d.Beneficiary),
		ProductID:     int64(d.Product),
		Quantity:      d.Quantity,
	}
	if !d.Date.IsZero() {
		dto.Date = d.Date.Format(dateFormat)
	}
	return dto
}

func (r DeliveryRequest) toDomain(id ledger.EventID) (*ledger.Delivery, error) {
	d := &ledger.Delivery{
		ID:          id,
		Occasion:    r.Occasion,
		Beneficiary: ledger.FamilyID(r.BeneficiaryID),
		Product:     ledger.ProductID(r.ProductID),
		Quantity:    r.Quantity,
	}
	if r.Date != "" {
		t, err := time.Parse(dateFormat, r.Date)
		if err != nil {
			return nil, err
		}
		d.Date = t
	}
	return d, nil
}

// =============================================================================
// FAMILIES / MEMBERS / HANDLERS
// =============================================================================

// FamilyDTO represents a beneficiary family in API responses.
type FamilyDTO struct {
	ID           int64  `json:"id"`
	LastName     string `json:"last_name"`
	FirstName    string `json:"first_name"`
	Father       string `json:"father,omitempty"`
	GrandFather  string `json:"grand_father,omitempty"`
	DayOfBirth   string `json:"day_of_birth,omitempty"`
	IDNumber     string `json:"id_number,omitempty"`
	Tribe        string `json:"tribe,omitempty"`
	HealthStatus string `json:"health_status,omitempty"`
	SocialStatus string `json:"social_status,omitempty"`
	Profession   string `json:"profession,omitempty"`
	PhoneNumber1 string `json:"phone_number1,omitempty"`
	PhoneNumber2 string `json:"phone_number2,omitempty"`
	Address      string `json:"address,omitempty"`
	Email        string `json:"email,omitempty"`
	HandlerID    *int64 `json:"handler_id,omitempty"`
}

// FamilyRequest is the request to create or update a family.
type FamilyRequest struct {
	LastName     string `json:"last_name"`
	FirstName    string `json:"first_name"`
	Father       string `json:"father"`
	GrandFather  string `json:"grand_father"`
	DayOfBirth   string `json:"day_of_birth"`
	IDNumber     string `json:"id_number"`
	Tribe        string `json:"tribe"`
	HealthStatus string `json:"health_status"`
	SocialStatus string `json:"social_status"`
	Profession   string `json:"profession"`
	PhoneNumber1 string `json:"phone_number1"`
	PhoneNumber2 string `json:"phone_number2"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	HandlerID    *int64 `json:"handler_id"`
}

func familyDTO(f *sqlite.Family) FamilyDTO {
	return FamilyDTO{
		ID:           int64(f.ID),
		LastName:     f.LastName,
		FirstName:    f.FirstName,
		Father:       f.Father,
		GrandFather:  f.GrandFather,
		DayOfBirth:   f.DayOfBirth,
		IDNumber:     f.IDNumber,
		Tribe:        f.Tribe,
		HealthStatus: f.HealthStatus,
		SocialStatus: f.SocialStatus,
		Profession:   f.Profession,
		PhoneNumber1: f.PhoneNumber1,
		PhoneNumber2: f.PhoneNumber2,
		Address:      f.Address,
		Email:        f.Email,
		HandlerID:    f.HandlerID,
	}
}

func (r FamilyRequest) toRecord(id ledger.FamilyID) *sqlite.Family {
	return &sqlite.Family{
		ID:           id,
		LastName:     r.LastName,
		FirstName:    r.FirstName,
		Father:       r.Father,
		GrandFather:  r.GrandFather,
		DayOfBirth:   r.DayOfBirth,
		IDNumber:     r.IDNumber,
		Tribe:        r.Tribe,
		HealthStatus: r.HealthStatus,
		SocialStatus: r.SocialStatus,
		Profession:   r.Profession,
		PhoneNumber1: r.PhoneNumber1,
		PhoneNumber2: r.PhoneNumber2,
		Address:      r.Address,
		Email:        r.Email,
		HandlerID:    r.HandlerID,
	}
}

// MemberDTO represents a family member (child, spouse, person in custody).
type MemberDTO struct {
	ID           int64  `json:"id"`
	FamilyID     int64  `json:"family_id"`
	Relation     string `json:"relation"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	DayOfBirth   string `json:"day_of_birth,omitempty"`
	Gender       string `json:"gender,omitempty"`
	HealthStatus string `json:"health_status,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// MemberRequest is the request to create or update a family member.
type MemberRequest struct {
	Relation     string `json:"relation"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DayOfBirth   string `json:"day_of_birth"`
	Gender       string `json:"gender"`
	HealthStatus string `json:"health_status"`
	Notes        string `json:"notes"`
}

func memberDTO(m sqlite.FamilyMember) MemberDTO {
	return MemberDTO{
		ID:           m.ID,
		FamilyID:     int64(m.FamilyID),
		Relation:     m.Relation,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		DayOfBirth:   m.DayOfBirth,
		Gender:       m.Gender,
		HealthStatus: m.HealthStatus,
		Notes:        m.Notes,
	}
}

// HandlerDTO represents a staff member in API responses.
type HandlerDTO struct {
	ID          int64  `json:"id"`
	LastName    string `json:"last_name"`
	FirstName   string `json:"first_name"`
	DayOfBirth  string `json:"day_of_birth,omitempty"`
	Type        string `json:"type,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// HandlerRequest is the request to create or update a handler.
type HandlerRequest struct {
	LastName    string `json:"last_name"`
	FirstName   string `json:"first_name"`
	DayOfBirth  string `json:"day_of_birth"`
	Type        string `json:"type"`
	PhoneNumber string `json:"phone_number"`
}

func handlerDTO(h sqlite.Handler) HandlerDTO {
	return HandlerDTO{
		ID:          h.ID,
		LastName:    h.LastName,
		FirstName:   h.FirstName,
		DayOfBirth:  h.DayOfBirth,
		Type:        h.Type,
		PhoneNumber: h.PhoneNumber,
	}
}
