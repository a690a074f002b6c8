/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Store, engine.TxStore and book.Store over database/sql.
  In production, the same patterns apply to PostgreSQL - there WithLoan's
  lock table becomes SELECT ... FOR UPDATE and only minor SQL dialect
  differences remain.

MONEY AT REST:
  Decimal columns are TEXT. SQLite would happily SUM() them as binary
  floats, which is exactly the cent drift this system exists to prevent, so
  aggregation always happens in Go over decimal.Decimal. Dates are TEXT in
  YYYY-MM-DD so lexicographic order is date order.

LOCKING:
  WithLoan serializes mutating operations per loan: an in-process lock
  table (one semaphore per loan id, bounded wait) plus a SQL transaction.
  The lock is held across the caller's whole function and released after
  commit or rollback. Lock wait exhaustion surfaces as engine.ErrLoanLocked
  without touching the database.

IMMUTABILITY:
  payments and payment_allocations have INSERT and SELECT paths only.
  Installment rows are deleted only by ReplaceInstallments (schedule
  regeneration), or cascade from their loan.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/credit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store, registry)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for tests
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
	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
)

// Store implements engine.TxStore and book.Store using SQLite.
type Store struct {
	db *sql.DB

	mu          sync.Mutex
	locks       map[engine.LoanID]chan struct{}
	lockTimeout time.Duration
}

// New opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:          db,
		locks:       make(map[engine.LoanID]chan struct{}),
		lockTimeout: 5 * time.Second,
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// SetLockTimeout overrides how long WithLoan waits for a contended loan.
func (s *Store) SetLockTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockTimeout = d
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		national_id TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		work_address TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		social_handle TEXT NOT NULL DEFAULT '',
		guarantor_national_id TEXT NOT NULL DEFAULT '',
		guarantor_name TEXT NOT NULL DEFAULT '',
		guarantor_surname TEXT NOT NULL DEFAULT '',
		guarantor_address TEXT NOT NULL DEFAULT '',
		guarantor_phone TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS portfolio_members (
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (portfolio_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS interest_rates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		fraction TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		principal TEXT NOT NULL,
		rate_id TEXT NOT NULL REFERENCES interest_rates(id),
		installment_count INTEGER NOT NULL,
		frequency TEXT NOT NULL,
		first_due_date TEXT NOT NULL,
		disbursed_on TEXT NOT NULL,
		state TEXT NOT NULL,
		outstanding_principal TEXT NOT NULL,
		outstanding_interest TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_loans_portfolio ON loans(portfolio_id);
	CREATE INDEX IF NOT EXISTS idx_loans_client ON loans(client_id);
	CREATE INDEX IF NOT EXISTS idx_loans_state ON loans(state);

	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		scheduled_principal TEXT NOT NULL,
		scheduled_interest TEXT NOT NULL,
		paid_principal TEXT NOT NULL,
		paid_interest TEXT NOT NULL,
		state TEXT NOT NULL,
		UNIQUE (loan_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_installments_loan_state ON installments(loan_id, state);
	CREATE INDEX IF NOT EXISTS idx_installments_due ON installments(due_date, state);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
		paid_on TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan_date ON payments(loan_id, paid_on);

	CREATE TABLE IF NOT EXISTS payment_allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
		installment_id TEXT NOT NULL REFERENCES installments(id) ON DELETE CASCADE,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_allocations_payment ON payment_allocations(payment_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_installment ON payment_allocations(installment_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// WITHLOAN - Exclusive per-loan transactional sections
// =============================================================================

// WithLoan implements engine.TxStore. The callback's store view is bound to
// a single transaction; returning an error rolls everything back.
func (s *Store) WithLoan(ctx context.Context, id engine.LoanID, fn func(engine.Store) error) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&txView{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, id engine.LoanID) (func(), error) {
	s.mu.Lock()
	sem, ok := s.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[id] = sem
	}
	timeout := s.lockTimeout
	s.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, engine.ErrLoanLocked
	case <-time.After(timeout):
		return nil, engine.ErrLoanLocked
	}
}

// txView exposes engine.Store bound to an open transaction.
type txView struct {
	q runner
}

// =============================================================================
// LOANS
// =============================================================================

const loanColumns = `id, client_id, portfolio_id, principal, rate_id, installment_count,
	frequency, first_due_date, disbursed_on, state, outstanding_principal, outstanding_interest, created_at`

func createLoan(ctx context.Context, q runner, loan *engine.Loan) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.ClientID, loan.PortfolioID,
		loan.Principal.String(), loan.RateID, loan.InstallmentCount,
		loan.Frequency, loan.FirstDueDate.String(), loan.DisbursedOn.String(),
		loan.State, loan.OutstandingPrincipal.String(), loan.OutstandingInterest.String(),
		loan.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

func getLoan(ctx context.Context, q runner, id engine.LoanID) (*engine.Loan, error) {
	row := q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrLoanNotFound
	}
	return loan, err
}

func updateLoan(ctx context.Context, q runner, loan *engine.Loan) error {
	result, err := q.ExecContext(ctx, `
		UPDATE loans SET state = ?, outstanding_principal = ?, outstanding_interest = ?
		WHERE id = ?`,
		loan.State, loan.OutstandingPrincipal.String(), loan.OutstandingInterest.String(), loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return engine.ErrLoanNotFound
	}
	return nil
}

func listLoans(ctx context.Context, q runner, filter engine.LoanFilter) ([]*engine.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE 1=1`
	var args []any
	if filter.PortfolioID != "" {
		query += ` AND portfolio_id = ?`
		args = append(args, filter.PortfolioID)
	}
	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*engine.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func listOpenLoanIDs(ctx context.Context, q runner) ([]engine.LoanID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM loans WHERE state NOT IN (?, ?) ORDER BY created_at, id`,
		engine.LoanPaid, engine.LoanCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list open loans: %w", err)
	}
	defer rows.Close()

	var ids []engine.LoanID
	for rows.Next() {
		var id engine.LoanID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanLoan(row rowScanner) (*engine.Loan, error) {
	var loan engine.Loan
	var principal, outstandingPrincipal, outstandingInterest string
	var firstDue, disbursed, createdAt string

	err := row.Scan(&loan.ID, &loan.ClientID, &loan.PortfolioID, &principal, &loan.RateID,
		&loan.InstallmentCount, &loan.Frequency, &firstDue, &disbursed, &loan.State,
		&outstandingPrincipal, &outstandingInterest, &createdAt)
	if err != nil {
		return nil, err
	}

	if loan.Principal, err = decimal.NewFromString(principal); err != nil {
		return nil, fmt.Errorf("bad principal for loan %s: %w", loan.ID, err)
	}
	if loan.OutstandingPrincipal, err = decimal.NewFromString(outstandingPrincipal); err != nil {
		return nil, fmt.Errorf("bad outstanding principal for loan %s: %w", loan.ID, err)
	}
	if loan.OutstandingInterest, err = decimal.NewFromString(outstandingInterest); err != nil {
		return nil, fmt.Errorf("bad outstanding interest for loan %s: %w", loan.ID, err)
	}
	if loan.FirstDueDate, err = engine.ParseDate(firstDue); err != nil {
		return nil, err
	}
	if loan.DisbursedOn, err = engine.ParseDate(disbursed); err != nil {
		return nil, err
	}
	if loan.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for loan %s: %w", loan.ID, err)
	}
	return &loan, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const installmentColumns = `id, loan_id, number, due_date, scheduled_principal,
	scheduled_interest, paid_principal, paid_interest, state`

func installmentsOf(ctx context.Context, q runner, loanID engine.LoanID) ([]*engine.Installment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id = ? ORDER BY number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load installments: %w", err)
	}
	defer rows.Close()

	var installments []*engine.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

func replaceInstallments(ctx context.Context, q runner, loanID engine.LoanID, installments []*engine.Installment) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM installments WHERE loan_id = ?`, loanID); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	for _, inst := range installments {
		_, err := q.ExecContext(ctx, `
			INSERT INTO installments (`+installmentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, loanID, inst.Number, inst.DueDate.String(),
			inst.ScheduledPrincipal.String(), inst.ScheduledInterest.String(),
			inst.PaidPrincipal.String(), inst.PaidInterest.String(), inst.State,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", inst.Number, err)
		}
	}
	return nil
}

func updateInstallment(ctx context.Context, q runner, inst *engine.Installment) error {
	result, err := q.ExecContext(ctx, `
		UPDATE installments SET paid_principal = ?, paid_interest = ?, state = ?
		WHERE id = ?`,
		inst.PaidPrincipal.String(), inst.PaidInterest.String(), inst.State, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return engine.ErrInstallmentNotFound
	}
	return nil
}

func scanInstallment(row rowScanner) (*engine.Installment, error) {
	var inst engine.Installment
	var due, schedP, schedI, paidP, paidI string

	err := row.Scan(&inst.ID, &inst.LoanID, &inst.Number, &due, &schedP, &schedI, &paidP, &paidI, &inst.State)
	if err != nil {
		return nil, err
	}
	if inst.DueDate, err = engine.ParseDate(due); err != nil {
		return nil, err
	}
	if inst.ScheduledPrincipal, err = decimal.NewFromString(schedP); err != nil {
		return nil, fmt.Errorf("bad scheduled principal: %w", err)
	}
	if inst.ScheduledInterest, err = decimal.NewFromString(schedI); err != nil {
		return nil, fmt.Errorf("bad scheduled interest: %w", err)
	}
	if inst.PaidPrincipal, err = decimal.NewFromString(paidP); err != nil {
		return nil, fmt.Errorf("bad paid principal: %w", err)
	}
	if inst.PaidInterest, err = decimal.NewFromString(paidI); err != nil {
		return nil, fmt.Errorf("bad paid interest: %w", err)
	}
	return &inst, nil
}

// =============================================================================
// PAYMENTS AND ALLOCATIONS - insert and select only
// =============================================================================

func createPayment(ctx context.Context, q runner, p *engine.Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, loan_id, paid_on, amount, method, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LoanID, p.PaidOn.String(), p.Amount.String(), p.Method, p.Note,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func getPayment(ctx context.Context, q runner, id engine.PaymentID) (*engine.Payment, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, loan_id, paid_on, amount, method, note, created_at FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrPaymentNotFound
	}
	return p, err
}

func paymentsOf(ctx context.Context, q runner, loanID engine.LoanID) ([]*engine.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, loan_id, paid_on, amount, method, note, created_at
		FROM payments WHERE loan_id = ? ORDER BY paid_on, created_at`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	defer rows.Close()

	var payments []*engine.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row rowScanner) (*engine.Payment, error) {
	var p engine.Payment
	var paidOn, amount, createdAt string

	err := row.Scan(&p.ID, &p.LoanID, &paidOn, &amount, &p.Method, &p.Note, &createdAt)
	if err != nil {
		return nil, err
	}
	if p.PaidOn, err = engine.ParseDate(paidOn); err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad payment amount: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad payment created_at: %w", err)
	}
	return &p, nil
}

func createAllocation(ctx context.Context, q runner, a *engine.Allocation) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_allocations (id, payment_id, installment_id, principal, interest)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.PaymentID, a.InstallmentID, a.Principal.String(), a.Interest.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func allocationsOf(ctx context.Context, q runner, paymentID engine.PaymentID) ([]*engine.Allocation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.payment_id, a.installment_id, a.principal, a.interest
		FROM payment_allocations a
		JOIN installments i ON i.id = a.installment_id
		WHERE a.payment_id = ?
		ORDER BY i.number`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	var allocations []*engine.Allocation
	for rows.Next() {
		var a engine.Allocation
		var principal, interest string
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InstallmentID, &principal, &interest); err != nil {
			return nil, err
		}
		if a.Principal, err = decimal.NewFromString(principal); err != nil {
			return nil, fmt.Errorf("bad allocation principal: %w", err)
		}
		if a.Interest, err = decimal.NewFromString(interest); err != nil {
			return nil, fmt.Errorf("bad allocation interest: %w", err)
		}
		allocations = append(allocations, &a)
	}
	return allocations, rows.Err()
}

func collectedByPortfolio(ctx context.Context, q runner, portfolioID engine.PortfolioID) (decimal.Decimal, decimal.Decimal, error) {
	// Sum in Go: SQLite's SUM() coerces TEXT decimals to floats.
	rows, err := q.QueryContext(ctx, `
		SELECT a.principal, a.interest
		FROM payment_allocations a
		JOIN payments p ON p.id = a.payment_id
		JOIN loans l ON l.id = p.loan_id
		WHERE l.portfolio_id = ?`, portfolioID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum collections: %w", err)
	}
	defer rows.Close()

	principal := decimal.Zero
	interest := decimal.Zero
	for rows.Next() {
		var ps, is string
		if err := rows.Scan(&ps, &is); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		dp, err := decimal.NewFromString(ps)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("bad allocation principal: %w", err)
		}
		di, err := decimal.NewFromString(is)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("bad allocation interest: %w", err)
		}
		principal = principal.Add(dp)
		interest = interest.Add(di)
	}
	return principal, interest, rows.Err()
}

// =============================================================================
// INTEREST RATES
// =============================================================================

func createRate(ctx context.Context, q runner, rate *engine.InterestRate) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO interest_rates (id, name, fraction, created_at)
		VALUES (?, ?, ?, ?)`,
		rate.ID, rate.Name, rate.Fraction.String(),
		rate.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err, "interest_rates.name") {
			return book.ErrDuplicateRateName
		}
		return fmt.Errorf("failed to insert rate: %w", err)
	}
	return nil
}

func getRate(ctx context.Context, q runner, id engine.RateID) (*engine.InterestRate, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, fraction, created_at FROM interest_rates WHERE id = ?`, id)
	rate, err := scanRate(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrRateNotFound
	}
	return rate, err
}

func listRates(ctx context.Context, q runner) ([]*engine.InterestRate, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, fraction, created_at FROM interest_rates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var rates []*engine.InterestRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func scanRate(row rowScanner) (*engine.InterestRate, error) {
	var rate engine.InterestRate
	var fraction, createdAt string

	err := row.Scan(&rate.ID, &rate.Name, &fraction, &createdAt)
	if err != nil {
		return nil, err
	}
	if rate.Fraction, err = decimal.NewFromString(fraction); err != nil {
		return nil, fmt.Errorf("bad rate fraction: %w", err)
	}
	if rate.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad rate created_at: %w", err)
	}
	return &rate, nil
}

// =============================================================================
// INTERFACE WIRING - *Store runs against the DB, txView against its tx
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, loan *engine.Loan) error {
	return createLoan(ctx, s.db, loan)
}
func (s *Store) GetLoan(ctx context.Context, id engine.LoanID) (*engine.Loan, error) {
	return getLoan(ctx, s.db, id)
}
func (s *Store) UpdateLoan(ctx context.Context, loan *engine.Loan) error {
	return updateLoan(ctx, s.db, loan)
}
func (s *Store) ListLoans(ctx context.Context, filter engine.LoanFilter) ([]*engine.Loan, error) {
	return listLoans(ctx, s.db, filter)
}
func (s *Store) ListOpenLoanIDs(ctx context.Context) ([]engine.LoanID, error) {
	return listOpenLoanIDs(ctx, s.db)
}
func (s *Store) Installments(ctx context.Context, loanID engine.LoanID) ([]*engine.Installment, error) {
	return installmentsOf(ctx, s.db, loanID)
}
func (s *Store) ReplaceInstallments(ctx context.Context, loanID engine.LoanID, installments []*engine.Installment) error {
	return replaceInstallments(ctx, s.db, loanID, installments)
}
func (s *Store) UpdateInstallment(ctx context.Context, inst *engine.Installment) error {
	return updateInstallment(ctx, s.db, inst)
}
func (s *Store) CreatePayment(ctx context.Context, p *engine.Payment) error {
	return createPayment(ctx, s.db, p)
}
func (s *Store) GetPayment(ctx context.Context, id engine.PaymentID) (*engine.Payment, error) {
	return getPayment(ctx, s.db, id)
}
func (s *Store) Payments(ctx context.Context, loanID engine.LoanID) ([]*engine.Payment, error) {
	return paymentsOf(ctx, s.db, loanID)
}
func (s *Store) CreateAllocation(ctx context.Context, a *engine.Allocation) error {
	return createAllocation(ctx, s.db, a)
}
func (s *Store) Allocations(ctx context.Context, paymentID engine.PaymentID) ([]*engine.Allocation, error) {
	return allocationsOf(ctx, s.db, paymentID)
}
func (s *Store) CollectedByPortfolio(ctx context.Context, portfolioID engine.PortfolioID) (decimal.Decimal, decimal.Decimal, error) {
	return collectedByPortfolio(ctx, s.db, portfolioID)
}
func (s *Store) CreateRate(ctx context.Context, rate *engine.InterestRate) error {
	return createRate(ctx, s.db, rate)
}
func (s *Store) GetRate(ctx context.Context, id engine.RateID) (*engine.InterestRate, error) {
	return getRate(ctx, s.db, id)
}
func (s *Store) ListRates(ctx context.Context) ([]*engine.InterestRate, error) {
	return listRates(ctx, s.db)
}

func (v *txView) CreateLoan(ctx context.Context, loan *engine.Loan) error {
	return createLoan(ctx, v.q, loan)
}
func (v *txView) GetLoan(ctx context.Context, id engine.LoanID) (*engine.Loan, error) {
	return getLoan(ctx, v.q, id)
}
func (v *txView) UpdateLoan(ctx context.Context, loan *engine.Loan) error {
	return updateLoan(ctx, v.q, loan)
}
func (v *txView) ListLoans(ctx context.Context, filter engine.LoanFilter) ([]*engine.Loan, error) {
	return listLoans(ctx, v.q, filter)
}
func (v *txView) ListOpenLoanIDs(ctx context.Context) ([]engine.LoanID, error) {
	return listOpenLoanIDs(ctx, v.q)
}
func (v *txView) Installments(ctx context.Context, loanID engine.LoanID) ([]*engine.Installment, error) {
	return installmentsOf(ctx, v.q, loanID)
}
func (v *txView) ReplaceInstallments(ctx context.Context, loanID engine.LoanID, installments []*engine.Installment) error {
	return replaceInstallments(ctx, v.q, loanID, installments)
}
func (v *txView) UpdateInstallment(ctx context.Context, inst *engine.Installment) error {
	return updateInstallment(ctx, v.q, inst)
}
func (v *txView) CreatePayment(ctx context.Context, p *engine.Payment) error {
	return createPayment(ctx, v.q, p)
}
func (v *txView) GetPayment(ctx context.Context, id engine.PaymentID) (*engine.Payment, error) {
	return getPayment(ctx, v.q, id)
}
func (v *txView) Payments(ctx context.Context, loanID engine.LoanID) ([]*engine.Payment, error) {
	return paymentsOf(ctx, v.q, loanID)
}
func (v *txView) CreateAllocation(ctx context.Context, a *engine.Allocation) error {
	return createAllocation(ctx, v.q, a)
}
func (v *txView) Allocations(ctx context.Context, paymentID engine.PaymentID) ([]*engine.Allocation, error) {
	return allocationsOf(ctx, v.q, paymentID)
}
func (v *txView) CollectedByPortfolio(ctx context.Context, portfolioID engine.PortfolioID) (decimal.Decimal, decimal.Decimal, error) {
	return collectedByPortfolio(ctx, v.q, portfolioID)
}
func (v *txView) CreateRate(ctx context.Context, rate *engine.InterestRate) error {
	return createRate(ctx, v.q, rate)
}
func (v *txView) GetRate(ctx context.Context, id engine.RateID) (*engine.InterestRate, error) {
	return getRate(ctx, v.q, id)
}
func (v *txView) ListRates(ctx context.Context) ([]*engine.InterestRate, error) {
	return listRates(ctx, v.q)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
