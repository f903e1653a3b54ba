/*
service_test.go - Transactional lifecycle tests

Runs the full capture/write/adjust flow against the real SQLite store so the
transaction boundary is exercised, not just the arithmetic.
*/
package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidtrack/stock-engine/ledger"
	"github.com/aidtrack/stock-engine/registry"
	"github.com/aidtrack/stock-engine/store/sqlite"
)

func newService(t *testing.T) (*sqlite.Store, *registry.Service) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, registry.New(st)
}

func seedProduct(t *testing.T, st *sqlite.Store, qty int64) ledger.ProductID {
	t.Helper()
	p := &ledger.Product{Category: "food", Type: "rice", Quantity: qty}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	return p.ID
}

func seedFamily(t *testing.T, st *sqlite.Store) ledger.FamilyID {
	t.Helper()
	f := &sqlite.Family{LastName: "Haddad", FirstName: "Omar"}
	require.NoError(t, st.SaveFamily(context.Background(), f))
	return f.ID
}

func productQty(t *testing.T, st *sqlite.Store, id ledger.ProductID) int64 {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

// =============================================================================
// DONATIONS
// =============================================================================

func TestDonationFullLifecycle(t *testing.T) {
	// GIVEN a product with 10 on hand
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)

	// WHEN a donation of 5 is recorded
	d := &ledger.Donation{Donor: "bakery", Product: &pid, Quantity: 5}
	require.NoError(t, svc.CreateDonation(ctx, d))
	require.NotZero(t, d.ID)
	assert.Equal(t, int64(15), productQty(t, st, pid))

	// WHEN it is corrected to 3
	d.Quantity = 3
	require.NoError(t, svc.UpdateDonation(ctx, d))
	assert.Equal(t, int64(13), productQty(t, st, pid))

	// WHEN it is deleted
	require.NoError(t, svc.DeleteDonation(ctx, d.ID))
	assert.Equal(t, int64(10), productQty(t, st, pid))

	_, err := svc.GetDonation(ctx, d.ID)
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestUnattributedDonation(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)

	// A donation without a product is stored but moves no stock.
	d := &ledger.Donation{Donor: "anonymous", Quantity: 5}
	require.NoError(t, svc.CreateDonation(ctx, d))
	assert.Equal(t, int64(10), productQty(t, st, pid))

	// Attaching it later applies the full effect.
	d.Product = &pid
	require.NoError(t, svc.UpdateDonation(ctx, d))
	assert.Equal(t, int64(15), productQty(t, st, pid))

	// Detaching reverses it.
	d.Product = nil
	require.NoError(t, svc.UpdateDonation(ctx, d))
	assert.Equal(t, int64(10), productQty(t, st, pid))
}

func TestDonationRollbackOnMissingProduct(t *testing.T) {
	// GIVEN a donation pointing at a product that does not exist
	st, svc := newService(t)
	ctx := context.Background()
	missing := ledger.ProductID(999)

	d := &ledger.Donation{Donor: "bakery", Product: &missing, Quantity: 5}
	err := svc.CreateDonation(ctx, d)

	// THEN the operation fails and the event write rolled back with it
	require.ErrorIs(t, err, ledger.ErrProductNotFound)
	donations, listErr := st.ListDonations(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, donations, "failed transition must not leave the event behind")
}

func TestDonationUpdateRollbackKeepsOldRow(t *testing.T) {
	// An update whose adjustment fails must leave the stored event unchanged.
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)

	d := &ledger.Donation{Donor: "bakery", Product: &pid, Quantity: 5}
	require.NoError(t, svc.CreateDonation(ctx, d))

	missing := ledger.ProductID(999)
	d.Product = &missing
	err := svc.UpdateDonation(ctx, d)
	require.ErrorIs(t, err, ledger.ErrProductNotFound)

	stored, err := svc.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Product)
	assert.Equal(t, pid, *stored.Product)
	assert.Equal(t, int64(5), stored.Quantity)
	assert.Equal(t, int64(15), productQty(t, st, pid), "reversal leg must have rolled back")
}

func TestUpdateMissingDonation(t *testing.T) {
	_, svc := newService(t)
	d := &ledger.Donation{ID: 42, Quantity: 5}
	err := svc.UpdateDonation(context.Background(), d)
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestNegativeQuantityRejected(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)

	err := svc.CreateDonation(ctx, &ledger.Donation{Product: &pid, Quantity: -1})
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	assert.Equal(t, int64(10), productQty(t, st, pid))
}

// =============================================================================
// DELIVERIES
// =============================================================================

func TestDeliveryFullLifecycle(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)
	fam := seedFamily(t, st)

	d := &ledger.Delivery{Occasion: "winter", Beneficiary: fam, Product: pid, Quantity: 4}
	require.NoError(t, svc.CreateDelivery(ctx, d))
	assert.Equal(t, int64(6), productQty(t, st, pid))

	d.Quantity = 2
	require.NoError(t, svc.UpdateDelivery(ctx, d))
	assert.Equal(t, int64(8), productQty(t, st, pid))

	require.NoError(t, svc.DeleteDelivery(ctx, d.ID))
	assert.Equal(t, int64(10), productQty(t, st, pid))
}

func TestDeliveryRequiresExistingFamily(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)

	d := &ledger.Delivery{Beneficiary: 999, Product: pid, Quantity: 4}
	err := svc.CreateDelivery(ctx, d)
	require.ErrorIs(t, err, ledger.ErrFamilyNotFound)
	assert.Equal(t, int64(10), productQty(t, st, pid))
}

func TestDeliveryReassignment(t *testing.T) {
	// GIVEN a delivery of 4 against P (10 -> 6)
	st, svc := newService(t)
	ctx := context.Background()
	p := seedProduct(t, st, 10)
	q := &ledger.Product{Category: "food", Type: "flour", Quantity: 0}
	require.NoError(t, st.CreateProduct(ctx, q))
	fam := seedFamily(t, st)

	d := &ledger.Delivery{Beneficiary: fam, Product: p, Quantity: 4}
	require.NoError(t, svc.CreateDelivery(ctx, d))
	require.Equal(t, int64(6), productQty(t, st, p))

	// WHEN it is reassigned to Q
	d.Product = q.ID
	require.NoError(t, svc.UpdateDelivery(ctx, d))

	// THEN P is restocked and Q debited below zero without clamping
	assert.Equal(t, int64(10), productQty(t, st, p))
	assert.Equal(t, int64(-4), productQty(t, st, q.ID))
}

func TestOverDeliveryGoesNegative(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 3)
	fam := seedFamily(t, st)

	d := &ledger.Delivery{Beneficiary: fam, Product: pid, Quantity: 5}
	require.NoError(t, svc.CreateDelivery(ctx, d))
	assert.Equal(t, int64(-2), productQty(t, st, pid))
}

// =============================================================================
// CONCURRENCY AND VERIFICATION
// =============================================================================

func TestConcurrentDonations(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 0)

	var wg sync.WaitGroup
	for _, q := range []int64{5, 7} {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			assert.NoError(t, svc.CreateDonation(ctx, &ledger.Donation{Product: &pid, Quantity: q}))
		}(q)
	}
	wg.Wait()

	assert.Equal(t, int64(12), productQty(t, st, pid))
}

func TestVerifyAfterLifecycle(t *testing.T) {
	// After any sequence of reconciled operations the stored quantity must
	// equal the history-derived one.
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 0)
	fam := seedFamily(t, st)

	d1 := &ledger.Donation{Product: &pid, Quantity: 10}
	require.NoError(t, svc.CreateDonation(ctx, d1))
	del := &ledger.Delivery{Beneficiary: fam, Product: pid, Quantity: 3}
	require.NoError(t, svc.CreateDelivery(ctx, del))
	d1.Quantity = 8
	require.NoError(t, svc.UpdateDonation(ctx, d1))

	r, err := svc.VerifyProduct(ctx, pid)
	require.NoError(t, err)
	assert.True(t, r.Consistent())
	assert.Equal(t, int64(5), r.Stored)
}

func TestRebuildRepairsOutOfBandDrift(t *testing.T) {
	// Opening stock with no backing events is drift by definition; Rebuild
	// snaps the stored value back to the history-derived one.
	st, svc := newService(t)
	ctx := context.Background()
	pid := seedProduct(t, st, 10)

	d := &ledger.Donation{Product: &pid, Quantity: 5}
	require.NoError(t, svc.CreateDonation(ctx, d))

	r, err := svc.VerifyProduct(ctx, pid)
	require.NoError(t, err)
	require.Equal(t, int64(10), r.Drift())

	p, err := svc.RebuildProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Quantity)
}
