/*
Package ledger provides the stock-ledger reconciliation core.

PURPOSE:
  This package keeps a Product's on-hand quantity consistent with the full
  history of the events that move stock: Donations (stock in) and Deliveries
  (stock out). The surrounding registry (families, handlers, HTTP) is a
  collaborator; the only shared mutable state the core touches is
  Product.Quantity.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: category/type/on-hand quantity, addressed by ProductID
  - EventKind: Donation (+) or Delivery (-), the sign convention
  - EventState: the ledger-relevant slice of an event (product ref + quantity)
  - Donation/Delivery: the two concrete event records
  - PriorState: snapshot of an event's last durably stored values

DESIGN PRINCIPLES:
  1. Quantity is a magnitude: events store an unsigned count; the engine
     computes the signed effect. The sign is never stored on the event.
  2. Events are never mutated by the engine; only Product.Quantity is.
  3. Product.Quantity is mutated EXCLUSIVELY through ProductStore.ApplyDelta
     once a product has events. Direct external writes to the quantity column
     are a modeling error and corrupt the ledger.

SEE ALSO:
  - engine.go: transition functions (create/update/delete reconciliation)
  - store.go: persistence contracts, including the atomic ApplyDelta
  - verify.go: recompute quantity from history and compare/repair
*/
package ledger

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID int64
type EventID int64
type FamilyID int64

// =============================================================================
// PRODUCT - The shared numeric state the engine protects
// =============================================================================

// Product is an in-kind good tracked by the registry.
//
// INVARIANT: once a product has associated events, Quantity is owned by the
// reconciliation engine. The intended invariant is Quantity >= 0, but the
// engine tolerates transient negatives and never clamps: clamping would
// silently break the identity "quantity == sum of event effects".
type Product struct {
	ID       ProductID
	Category string
	Type     string
	Quantity int64
}

// =============================================================================
// EVENT KIND - Sign convention
// =============================================================================

// EventKind identifies which direction an event moves stock.
type EventKind string

const (
	KindDonation EventKind = "donation" // stock in:  +quantity
	KindDelivery EventKind = "delivery" // stock out: -quantity
)

// Sign returns the signed unit effect of this kind on a product's quantity.
func (k EventKind) Sign() int64 {
	if k == KindDelivery {
		return -1
	}
	return 1
}

// =============================================================================
// EVENT STATE - What the engine needs to know about an event
// =============================================================================

// EventState is the ledger-relevant projection of an event: which product it
// points at (nil means unattributed) and its quantity magnitude.
// Descriptive fields (donor, occasion, beneficiary) are irrelevant here.
type EventState struct {
	Product  *ProductID
	Quantity int64
}

// SameProduct reports whether two states reference the same product,
// treating nil==nil as the same.
func (s EventState) SameProduct(p *ProductID) bool {
	if s.Product == nil || p == nil {
		return s.Product == nil && p == nil
	}
	return *s.Product == *p
}

// =============================================================================
// DONATION / DELIVERY - The two concrete ledger events
// =============================================================================

// Donation records goods received from a donor. Its product reference is
// nullable: a donation can be left unattributed (or detached later), in which
// case it has no ledger effect.
type Donation struct {
	ID       EventID
	Donor    string
	Product  *ProductID
	Date     time.Time
	Quantity int64
}

func (d Donation) State() EventState {
	return EventState{Product: d.Product, Quantity: d.Quantity}
}

// Delivery records goods handed to a beneficiary family. Its product
// reference is required by the schema.
type Delivery struct {
	ID          EventID
	Occasion    string
	Beneficiary FamilyID
	Product     ProductID
	Date        time.Time
	Quantity    int64
}

func (d Delivery) State() EventState {
	p := d.Product
	return EventState{Product: &p, Quantity: d.Quantity}
}

// =============================================================================
// PRIOR STATE - Snapshot used to compute compensating deltas
// =============================================================================

// PriorState is a point-in-time capture of an event's last DURABLY STORED
// product reference and quantity, taken immediately before an update or
// delete is committed.
//
// It must never be built from an in-memory event the caller has already
// modified: the whole point is to know what the ledger currently reflects.
// PriorState is transient, scoped to one reconciliation operation, and is
// never persisted.
type PriorState struct {
	Product  *ProductID
	Quantity int64
}
