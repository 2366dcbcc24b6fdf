// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opensegment/magpie/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with the SQLite, PostgreSQL and MySQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	case "mysql":
		db, err = openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; a re-run trips
			// on indexes that already exist.
			if r.driver == "mysql" && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return err
		}
	}
	return nil
}

// UpsertCustomers inserts or updates customer reference rows.
// Re-loading the same file is safe: existing rows are overwritten.
func (r *SQLRepository) UpsertCustomers(ctx context.Context, customers []domain.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	for i := range customers {
		if customers[i].ID == "" {
			return fmt.Errorf("%w: customer %d: customer_id is required", ErrInvalidInput, i)
		}
	}

	query := `
		INSERT INTO customers (customer_id, join_date, loyalty_tier, pref_channel, label_affinity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			join_date = excluded.join_date,
			loyalty_tier = excluded.loyalty_tier,
			pref_channel = excluded.pref_channel,
			label_affinity = excluded.label_affinity
	`
	if r.driver == "mysql" {
		query = `
			INSERT INTO customers (customer_id, join_date, loyalty_tier, pref_channel, label_affinity)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				join_date = VALUES(join_date),
				loyalty_tier = VALUES(loyalty_tier),
				pref_channel = VALUES(pref_channel),
				label_affinity = VALUES(label_affinity)
		`
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range customers {
		c := &customers[i]
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			c.ID, c.JoinDate, c.LoyaltyTier, c.PrefChannel, c.LabelAffinity,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetCustomer retrieves a customer by ID.
func (r *SQLRepository) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	query := `
		SELECT customer_id, join_date, loyalty_tier, pref_channel, label_affinity
		FROM customers
		WHERE customer_id = ?
	`

	var c domain.Customer
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID).Scan(
		&c.ID, &c.JoinDate, &c.LoyaltyTier, &c.PrefChannel, &c.LabelAffinity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCustomers retrieves every customer, ordered by ID.
func (r *SQLRepository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	query := `
		SELECT customer_id, join_date, loyalty_tier, pref_channel, label_affinity
		FROM customers
		ORDER BY customer_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.JoinDate, &c.LoyaltyTier, &c.PrefChannel, &c.LabelAffinity); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CountCustomers returns the number of customer rows.
func (r *SQLRepository) CountCustomers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n)
	return n, err
}

// InsertEvents appends events to the log. Inserts are idempotent on
// event_id, so re-loading a file does not duplicate history.
func (r *SQLRepository) InsertEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		ev := &events[i]
		switch {
		case ev.ID == "":
			return fmt.Errorf("%w: event %d: event_id is required", ErrInvalidInput, i)
		case ev.CustomerID == "":
			return fmt.Errorf("%w: event %d: customer_id is required", ErrInvalidInput, i)
		case ev.EventDT.IsZero():
			return fmt.Errorf("%w: event %d: event_dt is required", ErrInvalidInput, i)
		case ev.EventType == "":
			return fmt.Errorf("%w: event %d: event_type is required", ErrInvalidInput, i)
		}
	}

	var query string
	switch r.driver {
	case "postgres":
		query = insertEventSQL + ` ON CONFLICT (event_id) DO NOTHING`
	case "mysql":
		query = strings.Replace(insertEventSQL, "INSERT INTO", "INSERT IGNORE INTO", 1)
	default:
		query = strings.Replace(insertEventSQL, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range events {
		ev := &events[i]
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			ev.ID, ev.CustomerID, ev.EventDT, ev.EventType,
			ev.NetPrice, ev.ListPrice, ev.DiscountPct,
			ev.Category, ev.Brand, ev.Label, ev.OrderID,
			ev.RatingValue, ev.PolarityScore,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const insertEventSQL = `
	INSERT INTO events (
		event_id, customer_id, event_dt, event_type,
		net_price, list_price, discount_pct,
		category, brand, label, order_id,
		rating_value, polarity_score
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectEventSQL = `
	SELECT event_id, customer_id, event_dt, event_type,
		   net_price, list_price, discount_pct,
		   category, brand, label, order_id,
		   rating_value, polarity_score
	FROM events`

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var ev domain.Event
	err := rows.Scan(
		&ev.ID, &ev.CustomerID, &ev.EventDT, &ev.EventType,
		&ev.NetPrice, &ev.ListPrice, &ev.DiscountPct,
		&ev.Category, &ev.Brand, &ev.Label, &ev.OrderID,
		&ev.RatingValue, &ev.PolarityScore,
	)
	return ev, err
}

// ListEvents retrieves the full event log in chronological order.
func (r *SQLRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, selectEventSQL+` ORDER BY event_dt, event_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListEventsByCustomer retrieves one customer's events in chronological order.
func (r *SQLRepository) ListEventsByCustomer(ctx context.Context, customerID string) ([]domain.Event, error) {
	query := selectEventSQL + ` WHERE customer_id = ? ORDER BY event_dt, event_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of event rows.
func (r *SQLRepository) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// ReplaceFeatures swaps the entire feature table for the given rows in
// one transaction. Feature vectors are recomputed wholesale each
// refresh, never patched.
func (r *SQLRepository) ReplaceFeatures(ctx context.Context, features []domain.FeatureVector) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features`); err != nil {
		return err
	}

	query := `
		INSERT INTO features (
			customer_id, recency_days, tenure_days,
			purchase_count_90, spend_90, avg_order_value_90,
			category_diversity_90, discount_share_90, premium_share_90,
			label_match_rate_90, top_brand_share_90,
			review_rate, avg_rating, avg_polarity, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range features {
		f := &features[i]
		if f.CustomerID == "" {
			return fmt.Errorf("%w: feature %d: customer_id is required", ErrInvalidInput, i)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			f.CustomerID, f.RecencyDays, f.TenureDays,
			f.PurchaseCount90, f.Spend90, f.AvgOrderValue90,
			f.CategoryDiversity90, f.DiscountShare90, f.PremiumShare90,
			f.LabelMatchRate90, f.TopBrandShare90,
			f.ReviewRate, f.AvgRating, f.AvgPolarity, f.ComputedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const selectFeaturesSQL = `
	SELECT customer_id, recency_days, tenure_days,
		   purchase_count_90, spend_90, avg_order_value_90,
		   category_diversity_90, discount_share_90, premium_share_90,
		   label_match_rate_90, top_brand_share_90,
		   review_rate, avg_rating, avg_polarity, computed_at
	FROM features`

func scanFeatures(scan func(dest ...any) error) (domain.FeatureVector, error) {
	var f domain.FeatureVector
	err := scan(
		&f.CustomerID, &f.RecencyDays, &f.TenureDays,
		&f.PurchaseCount90, &f.Spend90, &f.AvgOrderValue90,
		&f.CategoryDiversity90, &f.DiscountShare90, &f.PremiumShare90,
		&f.LabelMatchRate90, &f.TopBrandShare90,
		&f.ReviewRate, &f.AvgRating, &f.AvgPolarity, &f.ComputedAt,
	)
	return f, err
}

// GetFeatures retrieves one customer's feature vector.
func (r *SQLRepository) GetFeatures(ctx context.Context, customerID string) (*domain.FeatureVector, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectFeaturesSQL+` WHERE customer_id = ?`), customerID)
	f, err := scanFeatures(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFeatures retrieves every feature vector, ordered by customer ID.
func (r *SQLRepository) ListFeatures(ctx context.Context) ([]domain.FeatureVector, error) {
	rows, err := r.db.QueryContext(ctx, selectFeaturesSQL+` ORDER BY customer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []domain.FeatureVector
	for rows.Next() {
		f, err := scanFeatures(rows.Scan)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// ReplacePersonas swaps the entire persona table for the given
// assignments in one transaction.
func (r *SQLRepository) ReplacePersonas(ctx context.Context, assignments []domain.PersonaAssignment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM personas`); err != nil {
		return err
	}

	query := `INSERT INTO personas (customer_id, persona, assigned_at) VALUES (?, ?, ?)`
	for i := range assignments {
		a := &assignments[i]
		if a.CustomerID == "" || a.Persona == "" {
			return fmt.Errorf("%w: assignment %d: customer_id and persona are required", ErrInvalidInput, i)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(query), a.CustomerID, a.Persona, a.AssignedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetPersona retrieves one customer's persona assignment.
func (r *SQLRepository) GetPersona(ctx context.Context, customerID string) (*domain.PersonaAssignment, error) {
	query := `SELECT customer_id, persona, assigned_at FROM personas WHERE customer_id = ?`

	var a domain.PersonaAssignment
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID).Scan(&a.CustomerID, &a.Persona, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListPersonas retrieves every persona assignment, ordered by customer ID.
func (r *SQLRepository) ListPersonas(ctx context.Context) ([]domain.PersonaAssignment, error) {
	return r.listPersonas(ctx, `SELECT customer_id, persona, assigned_at FROM personas ORDER BY customer_id`)
}

// ListPersonasByLabel retrieves the assignments for one persona label.
func (r *SQLRepository) ListPersonasByLabel(ctx context.Context, persona string) ([]domain.PersonaAssignment, error) {
	query := `SELECT customer_id, persona, assigned_at FROM personas WHERE persona = ? ORDER BY customer_id`
	return r.listPersonas(ctx, r.rebind(query), persona)
}

func (r *SQLRepository) listPersonas(ctx context.Context, query string, args ...any) ([]domain.PersonaAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []domain.PersonaAssignment
	for rows.Next() {
		var a domain.PersonaAssignment
		if err := rows.Scan(&a.CustomerID, &a.Persona, &a.AssignedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SaveSnapshot stores one segmentation run record.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, snap *domain.SegmentationSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot id is required", ErrInvalidInput)
	}

	thresholds, _ := json.Marshal(snap.Thresholds)
	counts, _ := json.Marshal(snap.PersonaCounts)

	query := `
		INSERT INTO snapshots (
			id, created_at, customer_count, event_count, window_days,
			max_event_dt, thresholds, persona_counts, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		snap.ID, snap.CreatedAt, snap.CustomerCount, snap.EventCount, snap.WindowDays,
		snap.MaxEventDT, string(thresholds), string(counts), snap.ElapsedMs,
	)
	return err
}

const selectSnapshotSQL = `
	SELECT id, created_at, customer_count, event_count, window_days,
		   max_event_dt, thresholds, persona_counts, elapsed_ms
	FROM snapshots`

func scanSnapshot(scan func(dest ...any) error) (domain.SegmentationSnapshot, error) {
	var s domain.SegmentationSnapshot
	var thresholds, counts string
	err := scan(
		&s.ID, &s.CreatedAt, &s.CustomerCount, &s.EventCount, &s.WindowDays,
		&s.MaxEventDT, &thresholds, &counts, &s.ElapsedMs,
	)
	if err != nil {
		return s, err
	}
	if thresholds != "" {
		json.Unmarshal([]byte(thresholds), &s.Thresholds)
	}
	if counts != "" {
		json.Unmarshal([]byte(counts), &s.PersonaCounts)
	}
	return s, nil
}

// GetSnapshot retrieves one run record by ID.
func (r *SQLRepository) GetSnapshot(ctx context.Context, snapshotID string) (*domain.SegmentationSnapshot, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectSnapshotSQL+` WHERE id = ?`), snapshotID)
	s, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSnapshot retrieves the most recent run record.
func (r *SQLRepository) LatestSnapshot(ctx context.Context) (*domain.SegmentationSnapshot, error) {
	row := r.db.QueryRowContext(ctx, selectSnapshotSQL+` ORDER BY created_at DESC LIMIT 1`)
	s, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSnapshots retrieves the most recent run records, newest first.
func (r *SQLRepository) ListSnapshots(ctx context.Context, limit int) ([]domain.SegmentationSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(selectSnapshotSQL+` ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.SegmentationSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
