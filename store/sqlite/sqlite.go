/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces plus the surrounding registry tables.

PURPOSE:
  Implements ledger.TxStore (products, donations, deliveries, prior-state
  capture, transactions) and the plain record CRUD the registry needs
  (families, family members, handlers). In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

ATOMIC INCREMENT:
  ApplyDelta is an in-database increment:

      UPDATE products SET quantity = quantity + ? WHERE id = ?

  The database performs the read-modify-write, so concurrent deltas against
  the same product are never lost. RowsAffected == 0 means the product is
  gone and surfaces as ledger.ErrProductNotFound.

TRANSACTIONS:
  WithTx opens a database transaction, hands the callback a transaction
  scoped ledger.Store view, and rolls back on error. The store mutex is held
  for the whole transaction, so capture-then-adjust sequences never
  interleave (SQLite allows a single writer anyway).

FOREIGN KEYS:
  donations.product_id    -> products  ON DELETE SET NULL  (nullable ref)
  deliveries.product_id   -> products  ON DELETE CASCADE
  deliveries.beneficiary  -> families  ON DELETE CASCADE
  family_members.family   -> families  ON DELETE CASCADE
  families.handler_id     -> handlers  ON DELETE SET NULL

WAL MODE:
  SQLite is opened with WAL and foreign keys on: multiple readers don't
  block, single writer at a time, better crash recovery.

QUANTITY OWNERSHIP:
  products.quantity is written ONLY by ApplyDelta (and the initial insert).
  SaveProduct updates category/type and deliberately leaves quantity alone;
  an out-of-band write to that column desynchronizes the ledger.

SEE ALSO:
  - ledger/store.go: interface definitions and contracts
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aidtrack/stock-engine/ledger"
)

const dateFormat = "2006-01-02"

// Store implements ledger.TxStore and the registry record CRUD using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite allows a single writer, and with ":memory:"
	// every pooled connection would otherwise be a separate empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS handlers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		day_of_birth TEXT,
		type TEXT,
		phone_number TEXT
	);

	CREATE TABLE IF NOT EXISTS families (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		father TEXT,
		grand_father TEXT,
		day_of_birth TEXT,
		id_number TEXT,
		tribe TEXT,
		health_status TEXT,
		social_status TEXT,
		profession TEXT,
		phone_number1 TEXT,
		phone_number2 TEXT,
		address TEXT,
		email TEXT,
		handler_id INTEGER REFERENCES handlers(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS family_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		family_id INTEGER NOT NULL REFERENCES families(id) ON DELETE CASCADE,
		relation TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT,
		day_of_birth TEXT,
		gender TEXT,
		health_status TEXT,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_family_members_family
		ON family_members(family_id);

	-- Ledger events. Quantities are magnitudes; the reconciliation engine
	-- supplies the sign. products.quantity is written only through ApplyDelta.
	CREATE TABLE IF NOT EXISTS donations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		donor TEXT,
		product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
		date TEXT,
		quantity INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_donations_product
		ON donations(product_id);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occasion TEXT,
		date TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		beneficiary_id INTEGER NOT NULL REFERENCES families(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_product
		ON deliveries(product_id);
	CREATE INDEX IF NOT EXISTS idx_deliveries_beneficiary
		ON deliveries(beneficiary_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// PRODUCT STORE (ledger.ProductStore)
// =============================================================================

// GetProduct returns a product row or ledger.ErrProductNotFound.
func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, db dbtx, id ledger.ProductID) (*ledger.Product, error) {
	var p ledger.Product
	err := db.QueryRowContext(ctx,
		"SELECT id, category, type, quantity FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Category, &p.Type, &p.Quantity)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ApplyDelta atomically adds delta to the product's quantity. The increment
// happens inside the database, so concurrent deltas against the same product
// never overwrite each other.
func (s *Store) ApplyDelta(ctx context.Context, id ledger.ProductID, delta int64) (*ledger.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyDelta(ctx, s.db, id, delta)
}

func applyDelta(ctx context.Context, db dbtx, id ledger.ProductID, delta int64) (*ledger.Product, error) {
	res, err := db.ExecContext(ctx,
		"UPDATE products SET quantity = quantity + ? WHERE id = ?", delta, id)
	if err != nil {
		return nil, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to apply delta: %w", err)
	}
	if n == 0 {
		return nil, &ledger.ReferenceMissingError{Product: id, Delta: delta}
	}
	return getProduct(ctx, db, id)
}

// =============================================================================
// PRIOR CAPTURE (ledger.PriorCapture)
// =============================================================================

// CaptureDonation reads the donation's durably stored product reference and
// quantity. Returns (nil, nil) when no row exists.
func (s *Store) CaptureDonation(ctx context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return captureDonation(ctx, s.db, id)
}

func captureDonation(ctx context.Context, db dbtx, id ledger.EventID) (*ledger.PriorState, error) {
	var (
		productID sql.NullInt64
		quantity  int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT product_id, quantity FROM donations WHERE id = ?", id,
	).Scan(&productID, &quantity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to capture donation: %w", err)
	}
	prior := &ledger.PriorState{Quantity: quantity}
	if productID.Valid {
		p := ledger.ProductID(productID.Int64)
		prior.Product = &p
	}
	return prior, nil
}

// CaptureDelivery reads the delivery's durably stored product reference and
// quantity. Returns (nil, nil) when no row exists.
func (s *Store) CaptureDelivery(ctx context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return captureDelivery(ctx, s.db, id)
}

func captureDelivery(ctx context.Context, db dbtx, id ledger.EventID) (*ledger.PriorState, error) {
	var (
		productID ledger.ProductID
		quantity  int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT product_id, quantity FROM deliveries WHERE id = ?", id,
	).Scan(&productID, &quantity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to capture delivery: %w", err)
	}
	return &ledger.PriorState{Product: &productID, Quantity: quantity}, nil
}

// =============================================================================
// DONATIONS
// =============================================================================

func (s *Store) GetDonation(ctx context.Context, id ledger.EventID) (*ledger.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDonation(ctx, s.db, id)
}

func getDonation(ctx context.Context, db dbtx, id ledger.EventID) (*ledger.Donation, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, donor, product_id, date, quantity FROM donations WHERE id = ?", id)
	d, err := scanDonation(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return d, nil
}

func scanDonation(row rowScanner) (*ledger.Donation, error) {
	var (
		d         ledger.Donation
		donor     sql.NullString
		productID sql.NullInt64
		date      sql.NullString
	)
	if err := row.Scan(&d.ID, &donor, &productID, &date, &d.Quantity); err != nil {
		return nil, err
	}
	d.Donor = donor.String
	if productID.Valid {
		p := ledger.ProductID(productID.Int64)
		d.Product = &p
	}
	if date.Valid && date.String != "" {
		d.Date, _ = time.Parse(dateFormat, date.String)
	}
	return &d, nil
}

// PutDonation inserts the donation when ID is zero, otherwise updates the
// existing row. It writes the event only; reconciliation is the engine's job.
func (s *Store) PutDonation(ctx context.Context, d *ledger.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putDonation(ctx, s.db, d)
}

func putDonation(ctx context.Context, db dbtx, d *ledger.Donation) error {
	if d.ID == 0 {
		res, err := db.ExecContext(ctx,
			"INSERT INTO donations (donor, product_id, date, quantity) VALUES (?, ?, ?, ?)",
			nullString(d.Donor), nullProductID(d.Product), nullDate(d.Date), d.Quantity)
		if err != nil {
			return mapError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to insert donation: %w", err)
		}
		d.ID = ledger.EventID(id)
		return nil
	}

	res, err := db.ExecContext(ctx,
		"UPDATE donations SET donor = ?, product_id = ?, date = ?, quantity = ? WHERE id = ?",
		nullString(d.Donor), nullProductID(d.Product), nullDate(d.Date), d.Quantity, d.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update donation: %w", err)
	}
	if n == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

func (s *Store) DeleteDonation(ctx context.Context, id ledger.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEvent(ctx, s.db, "donations", int64(id))
}

// ListDonations returns all donations, newest first.
func (s *Store) ListDonations(ctx context.Context) ([]ledger.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, donor, product_id, date, quantity FROM donations ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DonationsByProduct returns every donation currently attributed to a product.
func (s *Store) DonationsByProduct(ctx context.Context, id ledger.ProductID) ([]ledger.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return donationsByProduct(ctx, s.db, id)
}

func donationsByProduct(ctx context.Context, db dbtx, id ledger.ProductID) ([]ledger.Donation, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, donor, product_id, date, quantity FROM donations WHERE product_id = ? ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// =============================================================================
// DELIVERIES
// =============================================================================

func (s *Store) GetDelivery(ctx context.Context, id ledger.EventID) (*ledger.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDelivery(ctx, s.db, id)
}

func getDelivery(ctx context.Context, db dbtx, id ledger.EventID) (*ledger.Delivery, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, occasion, date, quantity, beneficiary_id, product_id FROM deliveries WHERE id = ?", id)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return d, nil
}

func scanDelivery(row rowScanner) (*ledger.Delivery, error) {
	var (
		d        ledger.Delivery
		occasion sql.NullString
		date     sql.NullString
	)
	if err := row.Scan(&d.ID, &occasion, &date, &d.Quantity, &d.Beneficiary, &d.Product); err != nil {
		return nil, err
	}
	d.Occasion = occasion.String
	if date.Valid && date.String != "" {
		d.Date, _ = time.Parse(dateFormat, date.String)
	}
	return &d, nil
}

// PutDelivery inserts the delivery when ID is zero, otherwise updates the
// existing row.
func (s *Store) PutDelivery(ctx context.Context, d *ledger.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putDelivery(ctx, s.db, d)
}

func putDelivery(ctx context.Context, db dbtx, d *ledger.Delivery) error {
	if d.ID == 0 {
		res, err := db.ExecContext(ctx,
			"INSERT INTO deliveries (occasion, date, quantity, beneficiary_id, product_id) VALUES (?, ?, ?, ?, ?)",
			nullString(d.Occasion), d.Date.Format(dateFormat), d.Quantity, d.Beneficiary, d.Product)
		if err != nil {
			return mapError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to insert delivery: %w", err)
		}
		d.ID = ledger.EventID(id)
		return nil
	}

	res, err := db.ExecContext(ctx,
		"UPDATE deliveries SET occasion = ?, date = ?, quantity = ?, beneficiary_id = ?, product_id = ? WHERE id = ?",
		nullString(d.Occasion), d.Date.Format(dateFormat), d.Quantity, d.Beneficiary, d.Product, d.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if n == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

func (s *Store) DeleteDelivery(ctx context.Context, id ledger.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEvent(ctx, s.db, "deliveries", int64(id))
}

// ListDeliveries returns all deliveries, newest first.
func (s *Store) ListDeliveries(ctx context.Context) ([]ledger.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, occasion, date, quantity, beneficiary_id, product_id FROM deliveries ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeliveriesByProduct returns every delivery referencing a product.
func (s *Store) DeliveriesByProduct(ctx context.Context, id ledger.ProductID) ([]ledger.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deliveriesByProduct(ctx, s.db, id)
}

func deliveriesByProduct(ctx context.Context, db dbtx, id ledger.ProductID) ([]ledger.Delivery, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, occasion, date, quantity, beneficiary_id, product_id FROM deliveries WHERE product_id = ? ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func deleteEvent(ctx context.Context, db dbtx, table string, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration, so one logical transition (capture, event write,
// adjustment) never interleaves with another.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the transaction-scoped view handed to WithTx callbacks.
// The store mutex is already held; all calls go straight to the sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	return getProduct(ctx, ts.tx, id)
}

func (ts *txStore) ApplyDelta(ctx context.Context, id ledger.ProductID, delta int64) (*ledger.Product, error) {
	return applyDelta(ctx, ts.tx, id, delta)
}

func (ts *txStore) CaptureDonation(ctx context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	return captureDonation(ctx, ts.tx, id)
}

func (ts *txStore) CaptureDelivery(ctx context.Context, id ledger.EventID) (*ledger.PriorState, error) {
	return captureDelivery(ctx, ts.tx, id)
}

func (ts *txStore) GetDonation(ctx context.Context, id ledger.EventID) (*ledger.Donation, error) {
	return getDonation(ctx, ts.tx, id)
}

func (ts *txStore) PutDonation(ctx context.Context, d *ledger.Donation) error {
	return putDonation(ctx, ts.tx, d)
}

func (ts *txStore) DeleteDonation(ctx context.Context, id ledger.EventID) error {
	return deleteEvent(ctx, ts.tx, "donations", int64(id))
}

func (ts *txStore) GetDelivery(ctx context.Context, id ledger.EventID) (*ledger.Delivery, error) {
	return getDelivery(ctx, ts.tx, id)
}

func (ts *txStore) PutDelivery(ctx context.Context, d *ledger.Delivery) error {
	return putDelivery(ctx, ts.tx, d)
}

func (ts *txStore) DeleteDelivery(ctx context.Context, id ledger.EventID) error {
	return deleteEvent(ctx, ts.tx, "deliveries", int64(id))
}

func (ts *txStore) FamilyExists(ctx context.Context, id ledger.FamilyID) (bool, error) {
	return familyExists(ctx, ts.tx, id)
}

func (ts *txStore) DonationsByProduct(ctx context.Context, id ledger.ProductID) ([]ledger.Donation, error) {
	return donationsByProduct(ctx, ts.tx, id)
}

func (ts *txStore) DeliveriesByProduct(ctx context.Context, id ledger.ProductID) ([]ledger.Delivery, error) {
	return deliveriesByProduct(ctx, ts.tx, id)
}

// =============================================================================
// PRODUCT CRUD (registry surface)
// =============================================================================

// CreateProduct inserts a product with its opening quantity.
func (s *Store) CreateProduct(ctx context.Context, p *ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO products (category, type, quantity, created_at) VALUES (?, ?, ?, ?)",
		p.Category, p.Type, p.Quantity, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = ledger.ProductID(id)
	return nil
}

// SaveProduct updates a product's descriptive fields. Quantity is owned by
// the reconciliation engine and is deliberately NOT written here.
func (s *Store) SaveProduct(ctx context.Context, p *ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET category = ?, type = ? WHERE id = ?",
		p.Category, p.Type, p.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrProductNotFound
	}
	return nil
}

// ListProducts returns all products ordered by category then type.
func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, category, type, quantity FROM products ORDER BY category, type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Product
	for rows.Next() {
		var p ledger.Product
		if err := rows.Scan(&p.ID, &p.Category, &p.Type, &p.Quantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProductIDs returns all product identifiers, for offline verification.
func (s *Store) ProductIDs(ctx context.Context) ([]ledger.ProductID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM products ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ProductID
	for rows.Next() {
		var id ledger.ProductID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteProduct removes a product. Donations referencing it are detached
// (product_id set NULL) and deliveries cascade, both by foreign key action.
func (s *Store) DeleteProduct(ctx context.Context, id ledger.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrProductNotFound
	}
	return nil
}

// =============================================================================
// FAMILY RECORDS
// =============================================================================

// Family is a beneficiary family record. Only its identity matters to the
// ledger core; the rest is registry bookkeeping.
type Family struct {
	ID           ledger.FamilyID
	LastName     string
	FirstName    string
	Father       string
	GrandFather  string
	DayOfBirth   string // YYYY-MM-DD, may be empty
	IDNumber     string
	Tribe        string
	HealthStatus string
	SocialStatus string
	Profession   string
	PhoneNumber1 string
	PhoneNumber2 string
	Address      string
	Email        string
	HandlerID    *int64
}

// SaveFamily inserts (ID == 0) or updates a family record.
func (s *Store) SaveFamily(ctx context.Context, f *Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO families
			(last_name, first_name, father, grand_father, day_of_birth, id_number,
			 tribe, health_status, social_status, profession,
			 phone_number1, phone_number2, address, email, handler_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.LastName, f.FirstName, nullString(f.Father), nullString(f.GrandFather),
			nullString(f.DayOfBirth), nullString(f.IDNumber), nullString(f.Tribe),
			nullString(f.HealthStatus), nullString(f.SocialStatus), nullString(f.Profession),
			nullString(f.PhoneNumber1), nullString(f.PhoneNumber2),
			nullString(f.Address), nullString(f.Email), f.HandlerID)
		if err != nil {
			return mapError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		f.ID = ledger.FamilyID(id)
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE families SET
			last_name = ?, first_name = ?, father = ?, grand_father = ?,
			day_of_birth = ?, id_number = ?, tribe = ?, health_status = ?,
			social_status = ?, profession = ?, phone_number1 = ?, phone_number2 = ?,
			address = ?, email = ?, handler_id = ?
		WHERE id = ?`,
		f.LastName, f.FirstName, nullString(f.Father), nullString(f.GrandFather),
		nullString(f.DayOfBirth), nullString(f.IDNumber), nullString(f.Tribe),
		nullString(f.HealthStatus), nullString(f.SocialStatus), nullString(f.Profession),
		nullString(f.PhoneNumber1), nullString(f.PhoneNumber2),
		nullString(f.Address), nullString(f.Email), f.HandlerID, f.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrFamilyNotFound
	}
	return nil
}

// GetFamily retrieves a family by ID.
func (s *Store) GetFamily(ctx context.Context, id ledger.FamilyID) (*Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, last_name, first_name, father, grand_father, day_of_birth,
		       id_number, tribe, health_status, social_status, profession,
		       phone_number1, phone_number2, address, email, handler_id
		FROM families WHERE id = ?`, id)

	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrFamilyNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFamilies returns all families ordered by last name.
func (s *Store) ListFamilies(ctx context.Context) ([]Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, last_name, first_name, father, grand_father, day_of_birth,
		       id_number, tribe, health_status, social_status, profession,
		       phone_number1, phone_number2, address, email, handler_id
		FROM families ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFamily(row rowScanner) (*Family, error) {
	var (
		f                                          Family
		father, grandFather, dob, idNumber, tribe  sql.NullString
		health, social, profession, phone1, phone2 sql.NullString
		address, email                             sql.NullString
		handlerID                                  sql.NullInt64
	)
	if err := row.Scan(&f.ID, &f.LastName, &f.FirstName, &father, &grandFather,
		&dob, &idNumber, &tribe, &health, &social, &profession,
		&phone1, &phone2, &address, &email, &handlerID); err != nil {
		return nil, err
	}
	f.Father = father.String
	f.GrandFather = grandFather.String
	f.DayOfBirth = dob.String
	f.IDNumber = idNumber.String
	f.Tribe = tribe.String
	f.HealthStatus = health.String
	f.SocialStatus = social.String
	f.Profession = profession.String
	f.PhoneNumber1 = phone1.String
	f.PhoneNumber2 = phone2.String
	f.Address = address.String
	f.Email = email.String
	if handlerID.Valid {
		f.HandlerID = &handlerID.Int64
	}
	return &f, nil
}

// DeleteFamily removes a family; members and deliveries cascade. Note the
// cascade does NOT reverse delivered quantities: removing a family erases
// its records, it does not return goods to stock.
func (s *Store) DeleteFamily(ctx context.Context, id ledger.FamilyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM families WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrFamilyNotFound
	}
	return nil
}

// FamilyExists checks a beneficiary reference without loading the record.
func (s *Store) FamilyExists(ctx context.Context, id ledger.FamilyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return familyExists(ctx, s.db, id)
}

func familyExists(ctx context.Context, db dbtx, id ledger.FamilyID) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM families WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

// =============================================================================
// FAMILY MEMBERS
// =============================================================================

// FamilyMember is a person attached to a family: a child, spouse, or person
// in custody, distinguished by Relation.
type FamilyMember struct {
	ID           int64
	FamilyID     ledger.FamilyID
	Relation     string // "child", "spouse", "custody"
	FirstName    string
	LastName     string
	DayOfBirth   string
	Gender       string
	HealthStatus string
	Notes        string
}

// SaveFamilyMember inserts (ID == 0) or updates a member record.
func (s *Store) SaveFamilyMember(ctx context.Context, m *FamilyMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO family_members
			(family_id, relation, first_name, last_name, day_of_birth, gender, health_status, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.FamilyID, m.Relation, m.FirstName, nullString(m.LastName),
			nullString(m.DayOfBirth), nullString(m.Gender),
			nullString(m.HealthStatus), nullString(m.Notes))
		if err != nil {
			return mapError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		m.ID = id
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE family_members SET
			family_id = ?, relation = ?, first_name = ?, last_name = ?,
			day_of_birth = ?, gender = ?, health_status = ?, notes = ?
		WHERE id = ?`,
		m.FamilyID, m.Relation, m.FirstName, nullString(m.LastName),
		nullString(m.DayOfBirth), nullString(m.Gender),
		nullString(m.HealthStatus), nullString(m.Notes), m.ID)
	return mapError(err)
}

// ListFamilyMembers returns a family's members.
func (s *Store) ListFamilyMembers(ctx context.Context, familyID ledger.FamilyID) ([]FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, family_id, relation, first_name, last_name, day_of_birth,
		       gender, health_status, notes
		FROM family_members WHERE family_id = ? ORDER BY relation, first_name`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FamilyMember
	for rows.Next() {
		var (
			m                                    FamilyMember
			lastName, dob, gender, health, notes sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.Relation, &m.FirstName,
			&lastName, &dob, &gender, &health, &notes); err != nil {
			return nil, err
		}
		m.LastName = lastName.String
		m.DayOfBirth = dob.String
		m.Gender = gender.String
		m.HealthStatus = health.String
		m.Notes = notes.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteFamilyMember removes a member record.
func (s *Store) DeleteFamilyMember(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM family_members WHERE id = ?", id)
	return mapError(err)
}

// =============================================================================
// HANDLERS (staff)
// =============================================================================

// Handler is a staff member assigned to families.
type Handler struct {
	ID          int64
	LastName    string
	FirstName   string
	DayOfBirth  string
	Type        string
	PhoneNumber string
}

// SaveHandler inserts (ID == 0) or updates a handler record.
func (s *Store) SaveHandler(ctx context.Context, h *Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO handlers (last_name, first_name, day_of_birth, type, phone_number)
			VALUES (?, ?, ?, ?, ?)`,
			h.LastName, h.FirstName, nullString(h.DayOfBirth),
			nullString(h.Type), nullString(h.PhoneNumber))
		if err != nil {
			return mapError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		h.ID = id
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE handlers SET last_name = ?, first_name = ?, day_of_birth = ?, type = ?, phone_number = ?
		WHERE id = ?`,
		h.LastName, h.FirstName, nullString(h.DayOfBirth),
		nullString(h.Type), nullString(h.PhoneNumber), h.ID)
	return mapError(err)
}

// ListHandlers returns all handlers.
func (s *Store) ListHandlers(ctx context.Context) ([]Handler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, last_name, first_name, day_of_birth, type, phone_number
		FROM handlers ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Handler
	for rows.Next() {
		var (
			h               Handler
			dob, typ, phone sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.LastName, &h.FirstName, &dob, &typ, &phone); err != nil {
			return nil, err
		}
		h.DayOfBirth = dob.String
		h.Type = typ.String
		h.PhoneNumber = phone.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHandler removes a handler; families referencing it are detached.
func (s *Store) DeleteHandler(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM handlers WHERE id = ?", id)
	return mapError(err)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullProductID(p *ledger.ProductID) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateFormat), Valid: true}
}

// mapError translates driver-level failures onto the ledger taxonomy.
// SQLITE_BUSY means the storage layer could not apply the write without
// conflicting with another writer; the caller may retry the transition.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}
