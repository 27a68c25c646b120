/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists policies, payments, commission rules, commissions and renewals.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

TENANT SCOPING:
  Queries that start from a caller-supplied id append "AND company_id = ?"
  when the scope filters, and omit the clause entirely under bypass.

CONDITIONAL TRANSITIONS:
  Status changes are "UPDATE ... WHERE id = ? AND status = ?". The number of
  affected rows is the answer: zero means the row was not in the expected
  state (or is gone), and the engine reports ErrInvalidState.

KEY TABLES:
  policies:         one row per contract, UNIQUE(company_id, policy_number)
  payments:         installments and ad-hoc payments
  commission_rules: rate tables (category_id NULL = general rule)
  commissions:      generated commissions
  renewals:         term rollovers

INDEXES:
  - idx_commissions_payment: unique on payment_id when set (idempotency key)
  - idx_commissions_triple: legacy (policy, producer) lookup for backfill
  - idx_payments_completed: backfill walk in payment-date order
  - idx_policies_end_date: renewal sweep

STORAGE FORMATS:
  Dates are TEXT "YYYY-MM-DD" so lexical order is chronological. Money and
  rates are decimal strings; nothing is stored as REAL.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/brokerage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/brokerage-engine/engine"
)

const dateLayout = "2006-01-02"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements engine.Store using SQLite. A Store returned to a WithTx
// callback is bound to that transaction.
type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: db}
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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		policy_number TEXT NOT NULL,
		client_id TEXT NOT NULL,
		insurer_id TEXT NOT NULL,
		category_id TEXT,
		producer_id TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		premium TEXT NOT NULL CHECK (CAST(premium AS REAL) >= 0),
		cadence TEXT NOT NULL,
		custom_commission_rate TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (company_id, policy_number)
	);

	CREATE INDEX IF NOT EXISTS idx_policies_end_date
		ON policies(status, end_date);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		policy_id TEXT NOT NULL REFERENCES policies(id),
		amount TEXT NOT NULL,
		due_date TEXT,
		payment_date TEXT,
		method TEXT,
		status TEXT NOT NULL,
		reminder_days INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_payments_policy
		ON payments(policy_id, due_date);
	CREATE INDEX IF NOT EXISTS idx_payments_completed
		ON payments(status, payment_date);

	CREATE TABLE IF NOT EXISTS commission_rules (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		insurer_id TEXT NOT NULL,
		category_id TEXT,
		rate TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rules_lookup
		ON commission_rules(company_id, insurer_id, effective_from DESC);

	CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		policy_id TEXT NOT NULL REFERENCES policies(id),
		producer_id TEXT NOT NULL,
		payment_id TEXT,
		rule_id TEXT,
		premium_amount TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount TEXT NOT NULL,
		period TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One commission per originating payment
	CREATE UNIQUE INDEX IF NOT EXISTS idx_commissions_payment
		ON commissions(payment_id) WHERE payment_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_commissions_triple
		ON commissions(policy_id, producer_id);

	CREATE TABLE IF NOT EXISTS renewals (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		policy_id TEXT NOT NULL REFERENCES policies(id),
		original_end_date TEXT NOT NULL,
		new_end_date TEXT,
		new_premium TEXT,
		status TEXT NOT NULL,
		processed_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_renewals_policy_status
		ON renewals(policy_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction. Calls nested in
// an open transaction join it.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx, inTx: true}); err != nil {
		return conflict(err)
	}

	return conflict(sqlTx.Commit())
}

// conflict marks lock contention as retryable.
func conflict(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", engine.ErrConcurrentModification, err)
	}
	return err
}

// scope appends the tenant filter to a query that already has a WHERE clause.
func scope(t engine.Tenant, query string, args ...any) (string, []any) {
	if companyID, ok := t.Filter(); ok {
		return query + " AND company_id = ?", append(args, companyID)
	}
	return query, args
}

func (s *Store) changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// POLICIES
// =============================================================================

const policyColumns = `id, company_id, policy_number, client_id, insurer_id, category_id, producer_id,
	start_date, end_date, premium, cadence, custom_commission_rate, status, created_at`

func (s *Store) GetPolicy(ctx context.Context, t engine.Tenant, id engine.PolicyID) (engine.Policy, error) {
	query, args := scope(t, "SELECT "+policyColumns+" FROM policies WHERE id = ?", id)
	p, err := scanPolicy(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Policy{}, engine.ErrPolicyNotFound
	}
	if err != nil {
		return engine.Policy{}, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

func (s *Store) InsertPolicy(ctx context.Context, p engine.Policy) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CompanyID, p.PolicyNumber, p.ClientID, p.InsurerID,
		nullString(p.CategoryID), nullString(p.ProducerID),
		formatDate(p.StartDate), formatDate(p.EndDate),
		p.Premium.String(), p.Cadence, nullDecimal(p.CustomCommissionRate),
		p.Status, formatDate(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicatePolicyNumber
		}
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p engine.Policy) error {
	ok, err := s.changed(s.q.ExecContext(ctx, `
		UPDATE policies
		SET end_date = ?, premium = ?, cadence = ?, custom_commission_rate = ?, status = ?
		WHERE id = ?`,
		formatDate(p.EndDate), p.Premium.String(), p.Cadence,
		nullDecimal(p.CustomCommissionRate), p.Status, p.ID,
	))
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if !ok {
		return engine.ErrPolicyNotFound
	}
	return nil
}

func (s *Store) ListExpiringPolicies(ctx context.Context, t engine.Tenant, from, to engine.Date) ([]engine.Policy, error) {
	query, args := scope(t,
		"SELECT "+policyColumns+" FROM policies WHERE status = ? AND end_date >= ? AND end_date <= ?",
		engine.PolicyActive, formatDate(from), formatDate(to))
	rows, err := s.q.QueryContext(ctx, query+" ORDER BY end_date, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []engine.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// PurgePolicy deletes dependents first so foreign keys hold at every step.
func (s *Store) PurgePolicy(ctx context.Context, id engine.PolicyID) error {
	for _, table := range []string{"commissions", "renewals", "payments"} {
		if _, err := s.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE policy_id = ?", id); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	ok, err := s.changed(s.q.ExecContext(ctx, "DELETE FROM policies WHERE id = ?", id))
	if err != nil {
		return fmt.Errorf("failed to purge policy: %w", err)
	}
	if !ok {
		return engine.ErrPolicyNotFound
	}
	return nil
}

func scanPolicy(row scanner) (engine.Policy, error) {
	var (
		p                                  engine.Policy
		categoryID, producerID, customRate sql.NullString
		start, end, premium, createdAt     string
	)
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.PolicyNumber, &p.ClientID, &p.InsurerID, &categoryID, &producerID,
		&start, &end, &premium, &p.Cadence, &customRate, &p.Status, &createdAt,
	)
	if err != nil {
		return p, err
	}
	p.CategoryID = categoryID.String
	p.ProducerID = producerID.String

	var d decoder
	p.StartDate = d.date(start)
	p.EndDate = d.date(end)
	p.CreatedAt = d.date(createdAt)
	p.Premium = d.decimal(premium)
	p.CustomCommissionRate = d.nullDecimal(customRate)
	return p, d.err
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, company_id, policy_id, amount, due_date, payment_date, method, status, reminder_days`

func (s *Store) GetPayment(ctx context.Context, t engine.Tenant, id engine.PaymentID) (engine.Payment, error) {
	query, args := scope(t, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Payment{}, engine.ErrPaymentNotFound
	}
	if err != nil {
		return engine.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, policyID engine.PolicyID) ([]engine.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE policy_id = ?
		ORDER BY due_date IS NULL, due_date, id`, policyID)
}

func (s *Store) InsertPayments(ctx context.Context, payments []engine.Payment) error {
	for _, p := range payments {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO payments (`+paymentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.CompanyID, p.PolicyID, p.Amount.String(),
			nullDate(p.DueDate), nullDate(p.PaymentDate), nullString(p.Method),
			p.Status, p.ReminderDays,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	}
	return nil
}

func (s *Store) TransitionPayment(ctx context.Context, id engine.PaymentID, from, to engine.PaymentStatus, paidAt *engine.Date) (bool, error) {
	ok, err := s.changed(s.q.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, payment_date = COALESCE(?, payment_date)
		WHERE id = ? AND status = ?`,
		to, nullDate(paidAt), id, from,
	))
	if err != nil {
		return false, fmt.Errorf("failed to transition payment: %w", err)
	}
	return ok, nil
}

func (s *Store) ListCompletedPayments(ctx context.Context, t engine.Tenant) ([]engine.Payment, error) {
	query, args := scope(t, "SELECT "+paymentColumns+" FROM payments WHERE status = ?", engine.PaymentCompleted)
	return s.queryPayments(ctx, query+" ORDER BY payment_date IS NULL, payment_date, id", args...)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]engine.Payment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []engine.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row scanner) (engine.Payment, error) {
	var (
		p                       engine.Payment
		amount                  string
		dueDate, paidAt, method sql.NullString
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.PolicyID, &amount, &dueDate, &paidAt, &method, &p.Status, &p.ReminderDays)
	if err != nil {
		return p, err
	}
	p.Method = method.String

	var d decoder
	p.Amount = d.decimal(amount)
	p.DueDate = d.nullDate(dueDate)
	p.PaymentDate = d.nullDate(paidAt)
	return p, d.err
}

// =============================================================================
// COMMISSION RULES
// =============================================================================

const ruleColumns = `id, company_id, insurer_id, category_id, rate, effective_from, effective_to`

func (s *Store) InsertRule(ctx context.Context, r engine.CommissionRule) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO commission_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.InsurerID, nullString(r.CategoryID), r.Rate.String(),
		formatDate(r.EffectiveFrom), nullDate(r.EffectiveTo),
	)
	if err != nil {
		return fmt.Errorf("failed to insert commission rule: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, t engine.Tenant, insurerID string) ([]engine.CommissionRule, error) {
	query, args := scope(t, "SELECT "+ruleColumns+" FROM commission_rules WHERE (? = '' OR insurer_id = ?)", insurerID, insurerID)
	return s.queryRules(ctx, query+" ORDER BY insurer_id, effective_from DESC, id", args...)
}

// CandidateRules orders specific before general, then most recent first, the
// same order SelectRule applies.
func (s *Store) CandidateRules(ctx context.Context, t engine.Tenant, insurerID, categoryID string, at engine.Date) ([]engine.CommissionRule, error) {
	day := formatDate(at)
	query, args := scope(t, `
		SELECT `+ruleColumns+` FROM commission_rules
		WHERE insurer_id = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		  AND (category_id IS NULL OR category_id = ?)`,
		insurerID, day, day, categoryID)
	return s.queryRules(ctx, query+" ORDER BY category_id IS NULL, effective_from DESC, id", args...)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]engine.CommissionRule, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission rules: %w", err)
	}
	defer rows.Close()

	var rules []engine.CommissionRule
	for rows.Next() {
		var (
			r              engine.CommissionRule
			categoryID, to sql.NullString
			rate, from     string
		)
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.InsurerID, &categoryID, &rate, &from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan commission rule: %w", err)
		}
		r.CategoryID = categoryID.String

		var d decoder
		r.Rate = d.decimal(rate)
		r.EffectiveFrom = d.date(from)
		r.EffectiveTo = d.nullDate(to)
		if d.err != nil {
			return nil, d.err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// COMMISSIONS
// =============================================================================

const commissionColumns = `id, company_id, policy_id, producer_id, payment_id, rule_id,
	premium_amount, rate, amount, period, status, created_at`

func (s *Store) InsertCommission(ctx context.Context, c engine.Commission) error {
	var paymentID, ruleID sql.NullString
	if c.PaymentID != nil {
		paymentID = nullString(string(*c.PaymentID))
	}
	if c.RuleID != nil {
		ruleID = nullString(string(*c.RuleID))
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO commissions (`+commissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.PolicyID, c.ProducerID, paymentID, ruleID,
		c.PremiumAmount.String(), c.Rate.String(), c.Amount.String(),
		nullString(c.Period), c.Status, formatDate(c.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateCommission
		}
		return fmt.Errorf("failed to insert commission: %w", err)
	}
	return nil
}

func (s *Store) GetCommission(ctx context.Context, t engine.Tenant, id engine.CommissionID) (engine.Commission, error) {
	query, args := scope(t, "SELECT "+commissionColumns+" FROM commissions WHERE id = ?", id)
	c, err := scanCommission(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Commission{}, engine.ErrCommissionNotFound
	}
	if err != nil {
		return engine.Commission{}, fmt.Errorf("failed to get commission: %w", err)
	}
	return c, nil
}

func (s *Store) ListCommissions(ctx context.Context, t engine.Tenant, f engine.CommissionFilter) ([]engine.Commission, error) {
	query, args := scope(t, `
		SELECT `+commissionColumns+` FROM commissions
		WHERE (? = '' OR policy_id = ?)
		  AND (? = '' OR producer_id = ?)
		  AND (? = '' OR status = ?)
		  AND (? = '' OR period = ?)`,
		f.PolicyID, f.PolicyID, f.ProducerID, f.ProducerID,
		f.Status, f.Status, f.Period, f.Period)

	rows, err := s.q.QueryContext(ctx, query+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commissions: %w", err)
	}
	defer rows.Close()

	var commissions []engine.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, c)
	}
	return commissions, rows.Err()
}

func (s *Store) HasCommissionForPayment(ctx context.Context, id engine.PaymentID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM commissions WHERE payment_id = ?", id,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) TransitionCommission(ctx context.Context, id engine.CommissionID, from, to engine.CommissionStatus) (bool, error) {
	ok, err := s.changed(s.q.ExecContext(ctx,
		"UPDATE commissions SET status = ? WHERE id = ? AND status = ?", to, id, from))
	if err != nil {
		return false, fmt.Errorf("failed to transition commission: %w", err)
	}
	return ok, nil
}

func scanCommission(row scanner) (engine.Commission, error) {
	var (
		c                           engine.Commission
		paymentID, ruleID, period   sql.NullString
		premiumAmount, rate, amount string
		createdAt                   string
	)
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.PolicyID, &c.ProducerID, &paymentID, &ruleID,
		&premiumAmount, &rate, &amount, &period, &c.Status, &createdAt,
	)
	if err != nil {
		return c, err
	}
	if paymentID.Valid {
		id := engine.PaymentID(paymentID.String)
		c.PaymentID = &id
	}
	if ruleID.Valid {
		id := engine.RuleID(ruleID.String)
		c.RuleID = &id
	}
	c.Period = period.String

	var d decoder
	c.PremiumAmount = d.decimal(premiumAmount)
	c.Rate = d.decimal(rate)
	c.Amount = d.decimal(amount)
	c.CreatedAt = d.date(createdAt)
	return c, d.err
}

// =============================================================================
// RENEWALS
// =============================================================================

const renewalColumns = `id, company_id, policy_id, original_end_date, new_end_date, new_premium,
	status, processed_by, created_at`

func (s *Store) GetRenewal(ctx context.Context, t engine.Tenant, id engine.RenewalID) (engine.Renewal, error) {
	query, args := scope(t, "SELECT "+renewalColumns+" FROM renewals WHERE id = ?", id)

	var (
		r                               engine.Renewal
		newEnd, newPremium, processedBy sql.NullString
		originalEnd, createdAt          string
	)
	err := s.q.QueryRowContext(ctx, query, args...).Scan(
		&r.ID, &r.CompanyID, &r.PolicyID, &originalEnd, &newEnd, &newPremium,
		&r.Status, &processedBy, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Renewal{}, engine.ErrRenewalNotFound
	}
	if err != nil {
		return engine.Renewal{}, fmt.Errorf("failed to get renewal: %w", err)
	}
	r.ProcessedBy = processedBy.String

	var d decoder
	r.OriginalEndDate = d.date(originalEnd)
	r.NewEndDate = d.nullDate(newEnd)
	r.NewPremium = d.nullDecimal(newPremium)
	r.CreatedAt = d.date(createdAt)
	return r, d.err
}

func (s *Store) InsertRenewal(ctx context.Context, r engine.Renewal) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO renewals (`+renewalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.PolicyID, formatDate(r.OriginalEndDate),
		nullDate(r.NewEndDate), nullDecimal(r.NewPremium),
		r.Status, nullString(r.ProcessedBy), formatDate(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert renewal: %w", err)
	}
	return nil
}

func (s *Store) HasPendingRenewal(ctx context.Context, policyID engine.PolicyID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM renewals WHERE policy_id = ? AND status = ?",
		policyID, engine.RenewalPending,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) ProcessRenewal(ctx context.Context, id engine.RenewalID, terms engine.RenewalTerms, processedBy string) (bool, error) {
	ok, err := s.changed(s.q.ExecContext(ctx, `
		UPDATE renewals
		SET status = ?, new_end_date = ?, new_premium = ?, processed_by = ?
		WHERE id = ? AND status = ?`,
		engine.RenewalProcessed, formatDate(terms.NewEndDate), nullDecimal(terms.NewPremium),
		nullString(processedBy), id, engine.RenewalPending,
	))
	if err != nil {
		return false, fmt.Errorf("failed to process renewal: %w", err)
	}
	return ok, nil
}

func (s *Store) RejectRenewal(ctx context.Context, id engine.RenewalID, rejectedBy string) (bool, error) {
	ok, err := s.changed(s.q.ExecContext(ctx,
		"UPDATE renewals SET status = ?, processed_by = ? WHERE id = ? AND status = ?",
		engine.RenewalRejected, nullString(rejectedBy), id, engine.RenewalPending,
	))
	if err != nil {
		return false, fmt.Errorf("failed to reject renewal: %w", err)
	}
	return ok, nil
}

func (s *Store) UpdatePendingRenewal(ctx context.Context, id engine.RenewalID, terms engine.RenewalTerms) (bool, error) {
	ok, err := s.changed(s.q.ExecContext(ctx,
		"UPDATE renewals SET new_end_date = ?, new_premium = ? WHERE id = ? AND status = ?",
		formatDate(terms.NewEndDate), nullDecimal(terms.NewPremium), id, engine.RenewalPending,
	))
	if err != nil {
		return false, fmt.Errorf("failed to update renewal: %w", err)
	}
	return ok, nil
}

func (s *Store) DeletePendingRenewal(ctx context.Context, id engine.RenewalID) (bool, error) {
	ok, err := s.changed(s.q.ExecContext(ctx,
		"DELETE FROM renewals WHERE id = ? AND status = ?", id, engine.RenewalPending))
	if err != nil {
		return false, fmt.Errorf("failed to delete renewal: %w", err)
	}
	return ok, nil
}

var _ engine.Store = (*Store)(nil)

// =============================================================================
// Helper functions
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// decoder parses stored text columns and keeps the first error.
type decoder struct {
	err error
}

func (d *decoder) date(s string) engine.Date {
	v, err := engine.ParseDate(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("bad stored date %q: %w", s, err)
	}
	return v
}

func (d *decoder) nullDate(s sql.NullString) *engine.Date {
	if !s.Valid {
		return nil
	}
	v := d.date(s.String)
	return &v
}

func (d *decoder) decimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("bad stored decimal %q: %w", s, err)
	}
	return v
}

func (d *decoder) nullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	v := d.decimal(s.String)
	return &v
}

func formatDate(d engine.Date) string {
	return d.Time.Format(dateLayout)
}

func nullDate(d *engine.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*d), Valid: true}
}

func nullDecimal(v *decimal.Decimal) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
