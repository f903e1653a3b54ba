/*
Package registry is the application service over the ledger core.

PURPOSE:
  Owns the transaction boundary for every donation/delivery lifecycle
  operation. Each operation wraps three steps in ONE storage transaction:

    1. capture the event's prior durably stored state (updates/deletes)
    2. write or remove the event row
    3. apply the compensating product adjustment through the engine

  If any step fails the whole transaction rolls back: the event write and
  any partially applied adjustment disappear together, so the ledger is
  never left half-applied.

VALIDATION:
  Quantities must be non-negative magnitudes (the engine supplies the sign).
  A delivery's beneficiary family must exist. Both are checked before any
  write so a bad request costs nothing.

SEE ALSO:
  - ledger/engine.go: the transition arithmetic
  - ledger/store.go: the transaction and atomicity contracts
  - api/handlers.go: the HTTP surface calling into this service
*/
package registry

import (
	"context"
	"fmt"

	"github.com/aidtrack/stock-engine/ledger"
)

// Service executes donation/delivery lifecycle operations transactionally.
type Service struct {
	store ledger.TxStore
}

// New returns a service writing through the given transactional store.
func New(store ledger.TxStore) *Service {
	return &Service{store: store}
}

// =============================================================================
// DONATIONS
// =============================================================================

// CreateDonation persists a new donation and credits its product (if any).
func (s *Service) CreateDonation(ctx context.Context, d *ledger.Donation) error {
	if d.Quantity < 0 {
		return fmt.Errorf("donation quantity %d: %w", d.Quantity, ledger.ErrInvalidQuantity)
	}

	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.PutDonation(ctx, d); err != nil {
			return err
		}
		eng := ledger.NewEngine(tx)
		return eng.EventCreated(ctx, ledger.KindDonation, d.State())
	})
}

// UpdateDonation saves changed donation fields and applies the compensating
// adjustment derived from the prior stored state. The capture happens inside
// the same transaction as the save, so no other writer can slip between them.
func (s *Service) UpdateDonation(ctx context.Context, d *ledger.Donation) error {
	if d.Quantity < 0 {
		return fmt.Errorf("donation quantity %d: %w", d.Quantity, ledger.ErrInvalidQuantity)
	}

	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		prior, err := tx.CaptureDonation(ctx, d.ID)
		if err != nil {
			return err
		}
		if prior == nil {
			return ledger.ErrEventNotFound
		}
		if err := tx.PutDonation(ctx, d); err != nil {
			return err
		}
		eng := ledger.NewEngine(tx)
		return eng.EventUpdated(ctx, ledger.KindDonation, d.State(), prior)
	})
}

// DeleteDonation removes a donation and reverses its stored effect.
// The stored row, not any caller-held copy, decides what gets reversed.
func (s *Service) DeleteDonation(ctx context.Context, id ledger.EventID) error {
	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		prior, err := tx.CaptureDonation(ctx, id)
		if err != nil {
			return err
		}
		if prior == nil {
			return ledger.ErrEventNotFound
		}
		if err := tx.DeleteDonation(ctx, id); err != nil {
			return err
		}
		eng := ledger.NewEngine(tx)
		return eng.EventDeleted(ctx, ledger.KindDonation, ledger.EventState{
			Product:  prior.Product,
			Quantity: prior.Quantity,
		})
	})
}

// GetDonation retrieves a donation by ID.
func (s *Service) GetDonation(ctx context.Context, id ledger.EventID) (*ledger.Donation, error) {
	return s.store.GetDonation(ctx, id)
}

// =============================================================================
// DELIVERIES
// =============================================================================

// CreateDelivery persists a new delivery and debits its product. The
// beneficiary family must exist; the product may drive the quantity negative
// (over-delivery is visible drift, not a rejected write).
func (s *Service) CreateDelivery(ctx context.Context, d *ledger.Delivery) error {
	if d.Quantity < 0 {
		return fmt.Errorf("delivery quantity %d: %w", d.Quantity, ledger.ErrInvalidQuantity)
	}

	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		ok, err := tx.FamilyExists(ctx, d.Beneficiary)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("beneficiary %d: %w", d.Beneficiary, ledger.ErrFamilyNotFound)
		}
		if err := tx.PutDelivery(ctx, d); err != nil {
			return err
		}
		eng := ledger.NewEngine(tx)
		return eng.EventCreated(ctx, ledger.KindDelivery, d.State())
	})
}

// UpdateDelivery saves changed delivery fields and applies the compensating
// adjustment, handling product reassignment (restock old, debit new).
func (s *Service) UpdateDelivery(ctx context.Context, d *ledger.Delivery) error {
	if d.Quantity < 0 {
		return fmt.Errorf("delivery quantity %d: %w", d.Quantity, ledger.ErrInvalidQuantity)
	}

	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		ok, err := tx.FamilyExists(ctx, d.Beneficiary)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("beneficiary %d: %w", d.Beneficiary, ledger.ErrFamilyNotFound)
		}
		prior, err := tx.CaptureDelivery(ctx, d.ID)
		if err != nil {
			return err
		}
		if prior == nil {
			return ledger.ErrEventNotFound
		}
		if err := tx.PutDelivery(ctx, d); err != nil {
			return err
		}
		eng := ledger.NewEngine(tx)
		return eng.EventUpdated(ctx, ledger.KindDelivery, d.State(), prior)
	})
}

// DeleteDelivery removes a delivery and returns its quantity to stock.
func (s *Service) DeleteDelivery(ctx context.Context, id ledger.EventID) error {
	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		prior, err := tx.CaptureDelivery(ctx, id)
		if err != nil {
			return err
		}
		if prior == nil {
			return ledger.ErrEventNotFound
		}
		if err := tx.DeleteDelivery(ctx, id); err != nil {
			return err
		}
		eng := ledger.NewEngine(tx)
		return eng.EventDeleted(ctx, ledger.KindDelivery, ledger.EventState{
			Product:  prior.Product,
			Quantity: prior.Quantity,
		})
	})
}

// GetDelivery retrieves a delivery by ID.
func (s *Service) GetDelivery(ctx context.Context, id ledger.EventID) (*ledger.Delivery, error) {
	return s.store.GetDelivery(ctx, id)
}

// =============================================================================
// VERIFICATION
// =============================================================================

// VerifyProduct recomputes a product's quantity from its full event history
// inside a transaction, so the answer is exact rather than advisory.
func (s *Service) VerifyProduct(ctx context.Context, id ledger.ProductID) (ledger.VerifyResult, error) {
	var result ledger.VerifyResult
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		result, err = ledger.Verify(ctx, tx, tx, id)
		return err
	})
	return result, err
}

// RebuildProduct repairs a product's stored quantity back to the
// history-derived value, transactionally.
func (s *Service) RebuildProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	var product *ledger.Product
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		product, err = ledger.Rebuild(ctx, tx, tx, id)
		return err
	})
	return product, err
}
