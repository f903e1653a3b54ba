// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/aidtrack/stock-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore. ApplyDelta holds the store lock across
// the read and the write, which gives the same lost-update guarantee the
// SQLite implementation gets from an in-database increment. WithTx holds the
// lock for the whole transaction and restores a snapshot on error.
type Memory struct {
	mu         sync.RWMutex
	products   map[ledger.ProductID]ledger.Product
	donations  map[ledger.EventID]ledger.Donation
	deliveries map[ledger.EventID]ledger.Delivery
	families   map[ledger.FamilyID]bool
	nextID     int64
}

func NewMemory() *Memory {
	return &Memory{
		products:   make(map[ledger.ProductID]ledger.Product),
		donations:  make(map[ledger.EventID]ledger.Donation),
		deliveries: make(map[ledger.EventID]ledger.Delivery),
		families:   make(map[ledger.FamilyID]bool),
	}
}

// AddProduct seeds a product row (test setup).
func (m *Memory) AddProduct(p ledger.Product) ledger.ProductID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = ledger.ProductID(m.nextID)
	}
	m.products[p.ID] = p
	return p.ID
}

// AddFamily seeds a beneficiary family (test setup).
func (m *Memory) AddFamily(id ledger.FamilyID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.families[id] = true
}

// =============================================================================
// PRODUCT STORE
// =============================================================================

func (m *Memory) GetProduct(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id)
}

func (m *Memory) getProductLocked(id ledger.ProductID) (*ledger.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, ledger.ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) ApplyDelta(_ context.Context, id ledger.ProductID, delta int64) (*ledger.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(id, delta)
}

func (m *Memory) applyDeltaLocked(id ledger.ProductID, delta int64) (*ledger.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, &ledger.ReferenceMissingError{Product: id, Delta: delta}
	}
	p.Quantity += delta
	m.products[id] = p
	return &p, nil
}

// =============================================================================
// PRIOR CAPTURE
// =============================================================================

func (m *Memory) CaptureDonation(_ context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, nil
	}
	return priorOf(d.State()), nil
}

func (m *Memory) CaptureDelivery(_ context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, nil
	}
	return priorOf(d.State()), nil
}

func priorOf(s ledger.EventState) *ledger.PriorState {
	prior := &ledger.PriorState{Quantity: s.Quantity}
	if s.Product != nil {
		p := *s.Product
		prior.Product = &p
	}
	return prior
}

// =============================================================================
// EVENTS
// =============================================================================

func (m *Memory) GetDonation(_ context.Context, id ledger.EventID) (*ledger.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, ledger.ErrEventNotFound
	}
	return &d, nil
}

func (m *Memory) PutDonation(_ context.Context, d *ledger.Donation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		m.nextID++
		d.ID = ledger.EventID(m.nextID)
	}
	m.donations[d.ID] = *d
	return nil
}

func (m *Memory) DeleteDonation(_ context.Context, id ledger.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.donations[id]; !ok {
		return ledger.ErrEventNotFound
	}
	delete(m.donations, id)
	return nil
}

func (m *Memory) GetDelivery(_ context.Context, id ledger.EventID) (*ledger.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, ledger.ErrEventNotFound
	}
	return &d, nil
}

func (m *Memory) PutDelivery(_ context.Context, d *ledger.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		m.nextID++
		d.ID = ledger.EventID(m.nextID)
	}
	m.deliveries[d.ID] = *d
	return nil
}

func (m *Memory) DeleteDelivery(_ context.Context, id ledger.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[id]; !ok {
		return ledger.ErrEventNotFound
	}
	delete(m.deliveries, id)
	return nil
}

func (m *Memory) FamilyExists(_ context.Context, id ledger.FamilyID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.families[id], nil
}

// =============================================================================
// EVENT SOURCE
// =============================================================================

func (m *Memory) DonationsByProduct(_ context.Context, id ledger.ProductID) ([]ledger.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Donation
	for _, d := range m.donations {
		if d.Product != nil && *d.Product == id {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) DeliveriesByProduct(_ context.Context, id ledger.ProductID) ([]ledger.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Delivery
	for _, d := range m.deliveries {
		if d.Product == id {
			out = append(out, d)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn while holding the store lock, simulating a serialized
// database transaction. On error the pre-transaction snapshot is restored,
// so a failed transition leaves no partial adjustment behind.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	products   map[ledger.ProductID]ledger.Product
	donations  map[ledger.EventID]ledger.Donation
	deliveries map[ledger.EventID]ledger.Delivery
	nextID     int64
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		products:   make(map[ledger.ProductID]ledger.Product, len(m.products)),
		donations:  make(map[ledger.EventID]ledger.Donation, len(m.donations)),
		deliveries: make(map[ledger.EventID]ledger.Delivery, len(m.deliveries)),
		nextID:     m.nextID,
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.donations {
		s.donations[k] = v
	}
	for k, v := range m.deliveries {
		s.deliveries[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.products = s.products
	m.donations = s.donations
	m.deliveries = s.deliveries
	m.nextID = s.nextID
}

// txView is the transaction-scoped Store handed to WithTx callbacks.
// The parent lock is already held, so it calls the *Locked variants directly.
type txView struct {
	parent *Memory
}

func (tv *txView) GetProduct(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return tv.parent.getProductLocked(id)
}

func (tv *txView) ApplyDelta(_ context.Context, id ledger.ProductID, delta int64) (*ledger.Product, error) {
	return tv.parent.applyDeltaLocked(id, delta)
}

func (tv *txView) CaptureDonation(_ context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	d, ok := tv.parent.donations[id]
	if !ok {
		return nil, nil
	}
	return priorOf(d.State()), nil
}

func (tv *txView) CaptureDelivery(_ context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	d, ok := tv.parent.deliveries[id]
	if !ok {
		return nil, nil
	}
	return priorOf(d.State()), nil
}

func (tv *txView) GetDonation(_ context.Context, id ledger.EventID) (*ledger.Donation, error) {
	d, ok := tv.parent.donations[id]
	if !ok {
		return nil, ledger.ErrEventNotFound
	}
	return &d, nil
}

func (tv *txView) PutDonation(_ context.Context, d *ledger.Donation) error {
	if d.ID == 0 {
		tv.parent.nextID++
		d.ID = ledger.EventID(tv.parent.nextID)
	}
	tv.parent.donations[d.ID] = *d
	return nil
}

func (tv *txView) DeleteDonation(_ context.Context, id ledger.EventID) error {
	if _, ok := tv.parent.donations[id]; !ok {
		return ledger.ErrEventNotFound
	}
	delete(tv.parent.donations, id)
	return nil
}

func (tv *txView) GetDelivery(_ context.Context, id ledger.EventID) (*ledger.Delivery, error) {
	d, ok := tv.parent.deliveries[id]
	if !ok {
		return nil, ledger.ErrEventNotFound
	}
	return &d, nil
}

func (tv *txView) PutDelivery(_ context.Context, d *ledger.Delivery) error {
	if d.ID == 0 {
		tv.parent.nextID++
		d.ID = ledger.EventID(tv.parent.nextID)
	}
	tv.parent.deliveries[d.ID] = *d
	return nil
}

func (tv *txView) DeleteDelivery(_ context.Context, id ledger.EventID) error {
	if _, ok := tv.parent.deliveries[id]; !ok {
		return ledger.ErrEventNotFound
	}
	delete(tv.parent.deliveries, id)
	return nil
}

func (tv *txView) FamilyExists(_ context.Context, id ledger.FamilyID) (bool, error) {
	return tv.parent.families[id], nil
}

func (tv *txView) DonationsByProduct(_ context.Context, id ledger.ProductID) ([]ledger.Donation, error) {
	var out []ledger.Donation
	for _, d := range tv.parent.donations {
		if d.Product != nil && *d.Product == id {
			out = append(out, d)
		}
	}
	return out, nil
}

func (tv *txView) DeliveriesByProduct(_ context.Context, id ledger.ProductID) ([]ledger.Delivery, error) {
	var out []ledger.Delivery
	for _, d := range tv.parent.deliveries {
		if d.Product == id {
			out = append(out, d)
		}
	}
	return out, nil
}
