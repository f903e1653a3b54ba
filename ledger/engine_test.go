/*
engine_test.go - Transition arithmetic tests

Covers create/update/delete reconciliation against the in-memory store:
quantity differences, product reassignment, nil product references, zero
quantities, missing products, and concurrent adjustments.
*/
package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidtrack/stock-engine/ledger"
	"github.com/aidtrack/stock-engine/ledger/store"
)

func newFixture(t *testing.T) (*store.Memory, *ledger.Engine) {
	t.Helper()
	m := store.NewMemory()
	return m, ledger.NewEngine(m)
}

func seedProduct(t *testing.T, m *store.Memory, qty int64) ledger.ProductID {
	t.Helper()
	return m.AddProduct(ledger.Product{Category: "food", Type: "rice", Quantity: qty})
}

func quantity(t *testing.T, m *store.Memory, id ledger.ProductID) int64 {
	t.Helper()
	p, err := m.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func ref(id ledger.ProductID) *ledger.ProductID { return &id }

// =============================================================================
// DONATION LIFECYCLE
// =============================================================================

func TestDonationLifecycle(t *testing.T) {
	// GIVEN a product with 10 on hand
	m, eng := newFixture(t)
	ctx := context.Background()
	pid := seedProduct(t, m, 10)

	// WHEN a donation of 5 is created
	err := eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(pid), Quantity: 5})
	require.NoError(t, err)

	// THEN the product holds 15
	assert.Equal(t, int64(15), quantity(t, m, pid))

	// WHEN the donation is corrected down to 3
	prior := &ledger.PriorState{Product: ref(pid), Quantity: 5}
	err = eng.EventUpdated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(pid), Quantity: 3}, prior)
	require.NoError(t, err)

	// THEN only the difference moved
	assert.Equal(t, int64(13), quantity(t, m, pid))

	// WHEN the donation is deleted
	err = eng.EventDeleted(ctx, ledger.KindDonation, ledger.EventState{Product: ref(pid), Quantity: 3})
	require.NoError(t, err)

	// THEN the product is back at its original quantity
	assert.Equal(t, int64(10), quantity(t, m, pid))
}

func TestDeliveryDebitsStock(t *testing.T) {
	m, eng := newFixture(t)
	ctx := context.Background()
	pid := seedProduct(t, m, 10)

	err := eng.EventCreated(ctx, ledger.KindDelivery, ledger.EventState{Product: ref(pid), Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), quantity(t, m, pid))

	err = eng.EventDeleted(ctx, ledger.KindDelivery, ledger.EventState{Product: ref(pid), Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(10), quantity(t, m, pid))
}

// =============================================================================
// UPDATES
// =============================================================================

func TestUpdateSameValuesIsNoOp(t *testing.T) {
	// An update that changes only descriptive fields must not move stock.
	m, eng := newFixture(t)
	ctx := context.Background()
	pid := seedProduct(t, m, 10)

	prior := &ledger.PriorState{Product: ref(pid), Quantity: 5}
	err := eng.EventUpdated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(pid), Quantity: 5}, prior)
	require.NoError(t, err)
	assert.Equal(t, int64(10), quantity(t, m, pid))
}

func TestUpdateWithoutPriorState(t *testing.T) {
	m, eng := newFixture(t)
	pid := seedProduct(t, m, 10)

	err := eng.EventUpdated(context.Background(), ledger.KindDonation,
		ledger.EventState{Product: ref(pid), Quantity: 5}, nil)
	require.ErrorIs(t, err, ledger.ErrMissingPriorState)
	assert.Equal(t, int64(10), quantity(t, m, pid), "no adjustment may land without prior state")
}

func TestDeliveryReassignment(t *testing.T) {
	// GIVEN a delivery of 4 already applied against product P (10 -> 6)
	m, eng := newFixture(t)
	ctx := context.Background()
	p := seedProduct(t, m, 6)
	q := m.AddProduct(ledger.Product{Category: "food", Type: "flour", Quantity: 0})

	// WHEN the delivery is reassigned from P to Q
	prior := &ledger.PriorState{Product: ref(p), Quantity: 4}
	err := eng.EventUpdated(ctx, ledger.KindDelivery, ledger.EventState{Product: ref(q), Quantity: 4}, prior)
	require.NoError(t, err)

	// THEN P is restocked and Q debited; Q may go negative, never clamped
	assert.Equal(t, int64(10), quantity(t, m, p))
	assert.Equal(t, int64(-4), quantity(t, m, q))
}

func TestReassignmentWithQuantityChange(t *testing.T) {
	// Reassignment must reverse the full prior effect on the old product and
	// apply the full new effect on the new one, never a cross-product diff.
	m, eng := newFixture(t)
	ctx := context.Background()
	p := seedProduct(t, m, 20)
	q := m.AddProduct(ledger.Product{Category: "food", Type: "flour", Quantity: 20})

	// Donation of 5 already applied to P.
	require.NoError(t, eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(p), Quantity: 5}))
	require.Equal(t, int64(25), quantity(t, m, p))

	prior := &ledger.PriorState{Product: ref(p), Quantity: 5}
	err := eng.EventUpdated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(q), Quantity: 8}, prior)
	require.NoError(t, err)

	assert.Equal(t, int64(20), quantity(t, m, p))
	assert.Equal(t, int64(28), quantity(t, m, q))
}

// =============================================================================
// NIL PRODUCT REFERENCES
// =============================================================================

func TestUnattributedDonationHasNoEffect(t *testing.T) {
	m, eng := newFixture(t)
	ctx := context.Background()
	pid := seedProduct(t, m, 10)

	require.NoError(t, eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Quantity: 5}))
	require.NoError(t, eng.EventDeleted(ctx, ledger.KindDonation, ledger.EventState{Quantity: 5}))
	assert.Equal(t, int64(10), quantity(t, m, pid))
}

func TestAttachDonationToProduct(t *testing.T) {
	// nil -> P: nothing to reverse, full effect applied to P.
	m, eng := newFixture(t)
	pid := seedProduct(t, m, 10)

	prior := &ledger.PriorState{Product: nil, Quantity: 5}
	err := eng.EventUpdated(context.Background(), ledger.KindDonation,
		ledger.EventState{Product: ref(pid), Quantity: 5}, prior)
	require.NoError(t, err)
	assert.Equal(t, int64(15), quantity(t, m, pid))
}

func TestDetachDonationFromProduct(t *testing.T) {
	// P -> nil: prior effect reversed, nothing applied.
	m, eng := newFixture(t)
	pid := seedProduct(t, m, 15)

	prior := &ledger.PriorState{Product: ref(pid), Quantity: 5}
	err := eng.EventUpdated(context.Background(), ledger.KindDonation,
		ledger.EventState{Product: nil, Quantity: 5}, prior)
	require.NoError(t, err)
	assert.Equal(t, int64(10), quantity(t, m, pid))
}

func TestNilToNilUpdateIsNoOp(t *testing.T) {
	m, eng := newFixture(t)
	pid := seedProduct(t, m, 10)

	prior := &ledger.PriorState{Product: nil, Quantity: 5}
	err := eng.EventUpdated(context.Background(), ledger.KindDonation,
		ledger.EventState{Product: nil, Quantity: 9}, prior)
	require.NoError(t, err)
	assert.Equal(t, int64(10), quantity(t, m, pid))
}

// =============================================================================
// ZERO QUANTITIES AND MISSING PRODUCTS
// =============================================================================

func TestZeroQuantityFlowsThrough(t *testing.T) {
	m, eng := newFixture(t)
	ctx := context.Background()
	pid := seedProduct(t, m, 10)

	require.NoError(t, eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(pid), Quantity: 0}))
	assert.Equal(t, int64(10), quantity(t, m, pid))

	// A zero-quantity adjustment against a missing product still errors.
	err := eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(999), Quantity: 0})
	require.ErrorIs(t, err, ledger.ErrProductNotFound)
}

func TestMissingProductReported(t *testing.T) {
	m, eng := newFixture(t)
	_ = m
	err := eng.EventCreated(context.Background(), ledger.KindDonation,
		ledger.EventState{Product: ref(42), Quantity: 5})
	require.ErrorIs(t, err, ledger.ErrProductNotFound)

	var refErr *ledger.ReferenceMissingError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, ledger.ProductID(42), refErr.Product)
	assert.Equal(t, int64(5), refErr.Delta)
}

func TestReassignmentToMissingProduct(t *testing.T) {
	// The first leg lands, the second fails; the error must surface so the
	// enclosing transaction can roll the first leg back.
	m, eng := newFixture(t)
	pid := seedProduct(t, m, 15)

	prior := &ledger.PriorState{Product: ref(pid), Quantity: 5}
	err := eng.EventUpdated(context.Background(), ledger.KindDonation,
		ledger.EventState{Product: ref(999), Quantity: 5}, prior)
	require.ErrorIs(t, err, ledger.ErrProductNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentDonationsBothLand(t *testing.T) {
	// Two concurrent creations against the same product: both effects must
	// survive regardless of interleaving.
	m, eng := newFixture(t)
	ctx := context.Background()
	pid := seedProduct(t, m, 0)

	var wg sync.WaitGroup
	for _, q := range []int64{5, 7} {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			assert.NoError(t, eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(pid), Quantity: q}))
		}(q)
	}
	wg.Wait()

	assert.Equal(t, int64(12), quantity(t, m, pid))
}

func TestDisjointProductsOrderIndependent(t *testing.T) {
	m, eng := newFixture(t)
	ctx := context.Background()
	p := seedProduct(t, m, 100)
	q := m.AddProduct(ledger.Product{Category: "food", Type: "flour", Quantity: 100})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, eng.EventCreated(ctx, ledger.KindDonation, ledger.EventState{Product: ref(p), Quantity: 1}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, eng.EventCreated(ctx, ledger.KindDelivery, ledger.EventState{Product: ref(q), Quantity: 1}))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(110), quantity(t, m, p))
	assert.Equal(t, int64(90), quantity(t, m, q))
}
