package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidtrack/stock-engine/ledger"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	// GIVEN a store with one product
	m := NewMemory()
	ctx := context.Background()
	pid := m.AddProduct(ledger.Product{Category: "food", Type: "rice", Quantity: 10})

	// WHEN a transaction applies writes and then fails
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.ApplyDelta(ctx, pid, 5); err != nil {
			return err
		}
		p := pid
		if err := tx.PutDonation(ctx, &ledger.Donation{Product: &p, Quantity: 5}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN neither the adjustment nor the event write survive
	p, err := m.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Quantity)

	donations, err := m.DonationsByProduct(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, donations)
}

func TestWithTxCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pid := m.AddProduct(ledger.Product{Category: "food", Type: "rice", Quantity: 10})

	err := m.WithTx(ctx, func(tx ledger.Store) error {
		_, err := tx.ApplyDelta(ctx, pid, 5)
		return err
	})
	require.NoError(t, err)

	p, err := m.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int64(15), p.Quantity)
}

func TestCaptureReadsStoredRow(t *testing.T) {
	// Capture must reflect the durably stored row, not any copy the caller
	// has mutated since.
	m := NewMemory()
	ctx := context.Background()
	pid := m.AddProduct(ledger.Product{Category: "food", Type: "rice"})
	p := pid

	d := &ledger.Donation{Product: &p, Quantity: 5}
	require.NoError(t, m.PutDonation(ctx, d))

	// Caller-side mutation after the save.
	d.Quantity = 999

	prior, err := m.CaptureDonation(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, int64(5), prior.Quantity)
	require.NotNil(t, prior.Product)
	assert.Equal(t, pid, *prior.Product)
}

func TestCaptureAbsentEvent(t *testing.T) {
	m := NewMemory()
	prior, err := m.CaptureDonation(context.Background(), 77)
	require.NoError(t, err)
	assert.Nil(t, prior)

	prior, err = m.CaptureDelivery(context.Background(), 77)
	require.NoError(t, err)
	assert.Nil(t, prior)
}
