/*
store.go - Persistence contracts for products and ledger events

PURPOSE:
  Defines the interface between the reconciliation core and the database.
  Different implementations back this with SQLite or in-memory storage.

KEY INTERFACES:
  ProductStore: Get + the atomic ApplyDelta (the engine's only write path)
  PriorCapture: reads an event's last durably stored state
  Store:        everything one reconciliation transaction needs
  TxStore:      Store plus the transaction boundary (WithTx)
  EventSource:  full per-product event history, for verify/rebuild

ATOMICITY CONTRACT:
  ApplyDelta MUST be a single atomic read-modify-write. Two concurrent deltas
  against the same product from independent operations must both land
  (lost-update hazard). SQLite does this with an in-database increment
  (quantity = quantity + ?); the memory store holds its lock across the
  read and the write. Read-then-write without atomicity is a correctness bug,
  not an optimization choice.

TRANSACTION CONTRACT:
  For updates and deletes, capture-then-adjust is a check-then-act hazard on
  its own. The caller wraps capture, the event write, and ApplyDelta in ONE
  WithTx call so a concurrent writer cannot interleave between them. If the
  function passed to WithTx errors, the whole transition rolls back and the
  ledger is exactly as it was - never half-applied.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - ledger/store/memory.go: in-memory for tests

SEE ALSO:
  - engine.go: consumes ProductStore
  - registry/service.go: owns the WithTx boundary
*/
package ledger

import "context"

// =============================================================================
// PRODUCT STORE - The engine's view of products
// =============================================================================

// ProductStore owns Product rows. It is a passive ledger: it enforces no
// sign constraint on the resulting quantity.
type ProductStore interface {
	// GetProduct returns the product or ErrProductNotFound.
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// ApplyDelta atomically adds delta to the product's quantity and returns
	// the updated row, or ErrProductNotFound if the product is gone.
	// This is the ONLY legitimate write path for Quantity once events exist.
	ApplyDelta(ctx context.Context, id ProductID, delta int64) (*Product, error)
}

// =============================================================================
// PRIOR CAPTURE - Durable-state snapshots for update/delete
// =============================================================================

// PriorCapture reads an event's last durably stored state.
// A (nil, nil) result means the event has no persisted identity - which is
// legitimate only for a pure creation.
//
// Implementations MUST read the stored row, never any pending in-memory
// mutation, and MUST be called inside the same transaction as the adjustment.
type PriorCapture interface {
	CaptureDonation(ctx context.Context, id EventID) (*PriorState, error)
	CaptureDelivery(ctx context.Context, id EventID) (*PriorState, error)
}

// =============================================================================
// STORE - What one reconciliation transaction sees
// =============================================================================

// Store bundles everything a single donation/delivery transition touches.
// The registry obtains one per transaction via TxStore.WithTx.
type Store interface {
	ProductStore
	PriorCapture
	EventSource

	GetDonation(ctx context.Context, id EventID) (*Donation, error)
	PutDonation(ctx context.Context, d *Donation) error
	DeleteDonation(ctx context.Context, id EventID) error

	GetDelivery(ctx context.Context, id EventID) (*Delivery, error)
	PutDelivery(ctx context.Context, d *Delivery) error
	DeleteDelivery(ctx context.Context, id EventID) error

	// FamilyExists validates a delivery's beneficiary reference.
	FamilyExists(ctx context.Context, id FamilyID) (bool, error)
}

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// EVENT SOURCE - Full history, for verification and rebuild
// =============================================================================

// EventSource lists every currently persisted event referencing a product.
// Used by Verify/Rebuild to recompute quantity from history.
type EventSource interface {
	DonationsByProduct(ctx context.Context, id ProductID) ([]Donation, error)
	DeliveriesByProduct(ctx context.Context, id ProductID) ([]Delivery, error)
}
