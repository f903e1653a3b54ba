/*
verify.go - Recompute product quantity from event history

PURPOSE:
  The ledger invariant says: at rest, a product's quantity equals the sum of
  all persisted donation effects (+q) and delivery effects (-q) referencing
  it. Verify makes that invariant executable; Rebuild repairs drift (e.g.
  after a half-applied correction performed out-of-band).

  Rebuild repairs through ApplyDelta rather than overwriting the column, so
  it composes with concurrent reconciliation instead of racing it.

SEE ALSO:
  - cmd/rebuild: offline verification/repair across all products
  - store.go: EventSource
*/
package ledger

import "context"

// VerifyResult compares a product's stored quantity with the quantity
// recomputed from its full event history.
type VerifyResult struct {
	Product    ProductID
	Stored     int64
	Computed   int64
	Donations  int
	Deliveries int
}

// Consistent reports whether the stored quantity matches the history.
func (r VerifyResult) Consistent() bool { return r.Stored == r.Computed }

// Drift returns stored minus computed.
func (r VerifyResult) Drift() int64 { return r.Stored - r.Computed }

// Verify recomputes the product's quantity from every persisted event and
// compares it with the stored value. Run it inside a transaction for an
// exact answer; outside one it is only advisory, since writers may land
// between the reads.
func Verify(ctx context.Context, products ProductStore, events EventSource, id ProductID) (VerifyResult, error) {
	p, err := products.GetProduct(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}

	donations, err := events.DonationsByProduct(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}
	deliveries, err := events.DeliveriesByProduct(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}

	var sum int64
	for _, d := range donations {
		sum += d.Quantity
	}
	for _, d := range deliveries {
		sum -= d.Quantity
	}

	return VerifyResult{
		Product:    id,
		Stored:     p.Quantity,
		Computed:   sum,
		Donations:  len(donations),
		Deliveries: len(deliveries),
	}, nil
}

// Rebuild applies the delta that brings the stored quantity back to the
// history-derived value. Returns the updated product; a no-op when the
// ledger is already consistent.
func Rebuild(ctx context.Context, products ProductStore, events EventSource, id ProductID) (*Product, error) {
	r, err := Verify(ctx, products, events, id)
	if err != nil {
		return nil, err
	}
	return products.ApplyDelta(ctx, id, -r.Drift())
}
