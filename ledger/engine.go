/*
engine.go - Reconciliation transitions for donation/delivery lifecycles

PURPOSE:
  Given a lifecycle transition of a ledger event (created, updated, deleted),
  compute and apply the minimal set of product adjustments that keep
  Product.Quantity equal to the sum of all persisted event effects - exactly
  once per transition.

STATE MACHINE (driven by the caller's persistence operations):

  (absent) --create--> (persisted)
  (persisted) --update--> (persisted)
  (persisted) --delete--> (absent)

TRANSITION RULES (sign = +1 donation, -1 delivery; q = magnitude):
  create:                      +sign*q on the referenced product
  update, same product:        +sign*(q - priorQ)
  update, product reassigned:  -sign*priorQ on the old, +sign*q on the new
  delete:                      -sign*q using the currently stored values

  A nil product reference means "no effect" at that leg, never an error.
  Zero quantities flow through the same arithmetic - no special casing, so
  the invariant argument stays uniform.

FAILURE SEMANTICS:
  The engine NEVER swallows an adjustment failure and never retries. Every
  error propagates so the enclosing transaction (owned by the caller, see
  store.go) rolls back the event write together with any partially applied
  leg. A reassignment whose second leg fails after the first succeeded is
  surfaced as a reconciliation failure; without the enclosing rollback it
  would require manual correction.

RE-ARCHITECTURE NOTE:
  Earlier generations of this system did reconciliation in implicit
  persistence hooks, smuggling the previous state through a field on the
  in-memory object. Here the transitions are explicit functions and the
  prior state is an explicit parameter, which makes the transaction boundary
  visible and the logic testable in isolation.

SEE ALSO:
  - store.go: ApplyDelta atomicity and WithTx contracts
  - verify.go: checks the quantity-equals-history invariant after the fact
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies product adjustments for event lifecycle transitions.
// It holds no state besides the store and is safe for concurrent use;
// callers provide the per-transition transaction scope.
type Engine struct {
	Products ProductStore
}

// NewEngine returns an engine writing through the given product store.
// Inside a transaction, pass the transaction-scoped store.
func NewEngine(products ProductStore) *Engine {
	return &Engine{Products: products}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// EventCreated applies the effect of a newly persisted event.
// An unattributed event (nil product) has no effect and is not an error.
func (e *Engine) EventCreated(ctx context.Context, kind EventKind, ev EventState) error {
	if ev.Product == nil {
		return nil
	}
	return e.adjust(ctx, *ev.Product, kind.Sign()*ev.Quantity)
}

// EventUpdated applies the compensating adjustment for an update, given the
// prior durably stored state captured before the save.
//
// When the product reference is unchanged the delta is the quantity
// difference. When the event was reassigned, the full prior effect is
// reversed on the old product and the full new effect applied to the new one
// - the delta is never a naive difference across different products, so
// changing product and quantity in the same update is handled correctly.
func (e *Engine) EventUpdated(ctx context.Context, kind EventKind, ev EventState, prior *PriorState) error {
	if prior == nil {
		return ErrMissingPriorState
	}

	sign := kind.Sign()

	if ev.SameProduct(prior.Product) {
		if ev.Product == nil {
			return nil
		}
		return e.adjust(ctx, *ev.Product, sign*(ev.Quantity-prior.Quantity))
	}

	// Reassignment: two adjustments within one logical operation.
	if prior.Product != nil {
		if err := e.adjust(ctx, *prior.Product, -sign*prior.Quantity); err != nil {
			return err
		}
	}
	if ev.Product != nil {
		if err := e.adjust(ctx, *ev.Product, sign*ev.Quantity); err != nil {
			if prior.Product != nil {
				// The reversal already landed; only the enclosing rollback
				// keeps the ledger consistent now.
				return fmt.Errorf("reassignment half-applied (old product %d reversed): %w", *prior.Product, err)
			}
			return err
		}
	}
	return nil
}

// EventDeleted reverses the effect of an event being removed. There is no
// separate prior state for a delete: the currently persisted values passed
// in are authoritative.
func (e *Engine) EventDeleted(ctx context.Context, kind EventKind, ev EventState) error {
	if ev.Product == nil {
		return nil
	}
	return e.adjust(ctx, *ev.Product, -kind.Sign()*ev.Quantity)
}

// adjust funnels every quantity change through ApplyDelta. Zero deltas are
// applied like any other so a missing product is reported either way.
func (e *Engine) adjust(ctx context.Context, id ProductID, delta int64) error {
	if _, err := e.Products.ApplyDelta(ctx, id, delta); err != nil {
		return err
	}
	return nil
}
