package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

const uniqueViolation = "23505"

// schema is applied by Migrate. The partial unique index is what keeps two
// API instances from both committing an accept for the same signal.
const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id                    UUID PRIMARY KEY,
	reporter_id           TEXT NOT NULL,
	reporter_phone        TEXT NOT NULL DEFAULT '',
	reporter_device_token TEXT NOT NULL DEFAULT '',
	lat                   DOUBLE PRECISION NOT NULL,
	lng                   DOUBLE PRECISION NOT NULL,
	level                 SMALLINT NOT NULL CHECK (level BETWEEN 1 AND 3),
	message               TEXT NOT NULL DEFAULT '',
	priority              INT NOT NULL,
	source                TEXT NOT NULL DEFAULT 'app',
	status                TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL,
	closed_at             TIMESTAMPTZ,
	version               INT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS signals_open_idx
	ON signals (status) WHERE status NOT IN ('resolved', 'false_alarm');

CREATE TABLE IF NOT EXISTS responders (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	device_token           TEXT NOT NULL DEFAULT '',
	available              BOOLEAN NOT NULL DEFAULT FALSE,
	lat                    DOUBLE PRECISION,
	lng                    DOUBLE PRECISION,
	location_updated_at    TIMESTAMPTZ,
	availability_radius_km DOUBLE PRECISION NOT NULL DEFAULT 0,
	verification_status    TEXT NOT NULL DEFAULT 'pending',
	certifications         JSONB NOT NULL DEFAULT '[]',
	allowed_levels         JSONB NOT NULL DEFAULT '[1]',
	stats                  JSONB NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
	id             UUID PRIMARY KEY,
	signal_id      UUID NOT NULL REFERENCES signals (id),
	responder_id   TEXT NOT NULL REFERENCES responders (id),
	status         TEXT NOT NULL,
	status_history JSONB NOT NULL DEFAULT '[]',
	distance_km    DOUBLE PRECISION,
	messages       JSONB NOT NULL DEFAULT '[]',
	completion     JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	version        INT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS responses_signal_idx ON responses (signal_id, created_at);

CREATE UNIQUE INDEX IF NOT EXISTS responses_one_active_per_signal
	ON responses (signal_id) WHERE status NOT IN ('completed', 'cancelled');
`

const (
	signalColumns = `id, reporter_id, reporter_phone, reporter_device_token, lat, lng, level,
		message, priority, source, status, created_at, updated_at, closed_at, version`
	responderColumns = `id, name, phone, device_token, available, lat, lng, location_updated_at,
		availability_radius_km, verification_status, certifications, allowed_levels, stats,
		created_at, updated_at`
	responseColumns = `id, signal_id, responder_id, status, status_history, distance_km,
		messages, completion, created_at, updated_at, version`
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Set connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.pool.Close()
}

// Migrate creates the tables and indexes if they do not exist yet
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Signal operations
func (db *PostgresDB) CreateSignal(ctx context.Context, sig *models.Signal) error {
	query := `
		INSERT INTO signals (` + signalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
	`
	_, err := db.pool.Exec(ctx, query,
		sig.ID, sig.ReporterID, sig.ReporterPhone, sig.ReporterDeviceToken,
		sig.Location.Lat, sig.Location.Lng, int(sig.Level), sig.Message, sig.Priority,
		sig.Source, string(sig.Status), sig.CreatedAt, sig.UpdatedAt, sig.ClosedAt,
	)
	if err != nil {
		return err
	}
	sig.Version = 1
	return nil
}

func (db *PostgresDB) GetSignal(ctx context.Context, id uuid.UUID) (*models.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`
	sig, err := scanSignal(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (db *PostgresDB) GetSignals(ctx context.Context, ids []uuid.UUID) ([]models.Signal, error) {
	if len(ids) == 0 {
		return []models.Signal{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = ANY($1::uuid[])`
	return db.querySignals(ctx, query, keys)
}

func (db *PostgresDB) ListOpenSignals(ctx context.Context) ([]models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE status NOT IN ('resolved', 'false_alarm')
		ORDER BY created_at
	`
	return db.querySignals(ctx, query)
}

func (db *PostgresDB) querySignals(ctx context.Context, query string, args ...any) ([]models.Signal, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, rows.Err()
}

// Responder operations
func (db *PostgresDB) SaveResponder(ctx context.Context, r *models.ResponderProfile) error {
	query := `
		INSERT INTO responders (` + responderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			device_token = EXCLUDED.device_token,
			availability_radius_km = EXCLUDED.availability_radius_km,
			verification_status = EXCLUDED.verification_status,
			certifications = EXCLUDED.certifications,
			allowed_levels = EXCLUDED.allowed_levels,
			updated_at = EXCLUDED.updated_at
	`
	var lat, lng *float64
	if r.Location != nil {
		lat, lng = &r.Location.Lat, &r.Location.Lng
	}
	certs := r.Certifications
	if certs == nil {
		certs = models.Certifications{}
	}
	_, err := db.pool.Exec(ctx, query,
		r.ID, r.Name, r.Phone, r.DeviceToken, r.Available, lat, lng, r.LocationUpdatedAt,
		r.AvailabilityRadiusKm, string(r.VerificationStatus), certs, r.AllowedLevels,
		r.Stats, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) SetResponderAvailability(ctx context.Context, id string, available bool, at time.Time) error {
	query := `UPDATE responders SET available = $2, updated_at = $3 WHERE id = $1`
	return db.execResponder(ctx, id, query, id, available, at)
}

func (db *PostgresDB) SetResponderLocation(ctx context.Context, id string, loc models.Location, at time.Time) error {
	query := `
		UPDATE responders
		SET lat = $2, lng = $3, location_updated_at = $4, updated_at = $4
		WHERE id = $1
	`
	return db.execResponder(ctx, id, query, id, loc.Lat, loc.Lng, at)
}

// IncrementResponderStat bumps one counter inside the stats document in place
func (db *PostgresDB) IncrementResponderStat(ctx context.Context, id string, stat models.ResponderStat, at time.Time) error {
	if !stat.Valid() {
		return utils.ErrInvalidRequest.WithDetails("unknown stat %q", stat)
	}
	query := `
		UPDATE responders
		SET stats = jsonb_set(stats, ARRAY[$2::text], to_jsonb(COALESCE((stats->>($2::text))::int, 0) + 1)),
			updated_at = $3
		WHERE id = $1
	`
	return db.execResponder(ctx, id, query, id, string(stat), at)
}

func (db *PostgresDB) execResponder(ctx context.Context, id, query string, args ...any) error {
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrNotFound.WithDetails("responder %s", id)
	}
	return nil
}

func (db *PostgresDB) GetResponder(ctx context.Context, id string) (*models.ResponderProfile, error) {
	query := `SELECT ` + responderColumns + ` FROM responders WHERE id = $1`
	r, err := scanResponder(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (db *PostgresDB) ListAvailableResponders(ctx context.Context) ([]models.ResponderProfile, error) {
	query := `SELECT ` + responderColumns + ` FROM responders WHERE available`
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ResponderProfile
	for rows.Next() {
		r, err := scanResponder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Response operations
func (db *PostgresDB) GetResponse(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE id = $1`
	return db.queryResponse(ctx, query, id)
}

func (db *PostgresDB) GetActiveResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM responses
		WHERE signal_id = $1 AND status NOT IN ('completed', 'cancelled')
	`
	return db.queryResponse(ctx, query, signalID)
}

func (db *PostgresDB) GetLatestResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM responses
		WHERE signal_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return db.queryResponse(ctx, query, signalID)
}

func (db *PostgresDB) queryResponse(ctx context.Context, query string, arg any) (*models.Response, error) {
	resp, err := scanResponse(db.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CommitAccept locks the signal row, re-checks it and inserts the response
// in one transaction.
func (db *PostgresDB) CommitAccept(ctx context.Context, sig *models.Signal, resp *models.Response) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var version int
	err = tx.QueryRow(ctx, `SELECT status, version FROM signals WHERE id = $1 FOR UPDATE`, sig.ID).
		Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return utils.ErrNotFound.WithDetails("signal %s", sig.ID)
	}
	if err != nil {
		return err
	}

	var active bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM responses
			WHERE signal_id = $1 AND status NOT IN ('completed', 'cancelled')
		)`, sig.ID).Scan(&active)
	if err != nil {
		return err
	}
	if active {
		return utils.ErrAlreadyAssigned
	}
	if models.SignalState(status).Terminal() {
		return utils.ErrSignalAlreadyClosed
	}
	if version != sig.Version {
		return utils.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO responses (`+responseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
		resp.ID, resp.SignalID, resp.ResponderID, string(resp.Status), resp.StatusHistory,
		resp.DistanceKm, resp.Messages, resp.Completion, resp.CreatedAt, resp.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return utils.ErrAlreadyAssigned
		}
		return err
	}

	if err := updateSignal(ctx, tx, sig); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit accept: %w", err)
	}

	sig.Version++
	resp.Version = 1
	return nil
}

func (db *PostgresDB) SaveTransition(ctx context.Context, sig *models.Signal, resp *models.Response) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if sig != nil {
		if err := updateSignal(ctx, tx, sig); err != nil {
			return err
		}
	}
	if resp != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE responses
			SET status = $3, status_history = $4, distance_km = $5, messages = $6,
				completion = $7, updated_at = $8, version = version + 1
			WHERE id = $1 AND version = $2`,
			resp.ID, resp.Version, string(resp.Status), resp.StatusHistory, resp.DistanceKm,
			resp.Messages, resp.Completion, resp.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return utils.ErrConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	if sig != nil {
		sig.Version++
	}
	if resp != nil {
		resp.Version++
	}
	return nil
}

func updateSignal(ctx context.Context, tx pgx.Tx, sig *models.Signal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE signals
		SET status = $3, updated_at = $4, closed_at = $5, version = version + 1
		WHERE id = $1 AND version = $2`,
		sig.ID, sig.Version, string(sig.Status), sig.UpdatedAt, sig.ClosedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrConflict
	}
	return nil
}

func scanSignal(row pgx.Row) (*models.Signal, error) {
	var sig models.Signal
	var level int
	var status string
	err := row.Scan(
		&sig.ID, &sig.ReporterID, &sig.ReporterPhone, &sig.ReporterDeviceToken,
		&sig.Location.Lat, &sig.Location.Lng, &level, &sig.Message, &sig.Priority,
		&sig.Source, &status, &sig.CreatedAt, &sig.UpdatedAt, &sig.ClosedAt, &sig.Version,
	)
	if err != nil {
		return nil, err
	}
	sig.Level = models.EmergencyLevel(level)
	sig.Status = models.SignalState(status)
	return &sig, nil
}

func scanResponder(row pgx.Row) (*models.ResponderProfile, error) {
	var r models.ResponderProfile
	var lat, lng *float64
	var verification string
	err := row.Scan(
		&r.ID, &r.Name, &r.Phone, &r.DeviceToken, &r.Available, &lat, &lng,
		&r.LocationUpdatedAt, &r.AvailabilityRadiusKm, &verification,
		&r.Certifications, &r.AllowedLevels, &r.Stats, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		r.Location = &models.Location{Lat: *lat, Lng: *lng}
	}
	r.VerificationStatus = models.VerificationStatus(verification)
	return &r, nil
}

func scanResponse(row pgx.Row) (*models.Response, error) {
	var resp models.Response
	var status string
	err := row.Scan(
		&resp.ID, &resp.SignalID, &resp.ResponderID, &status, &resp.StatusHistory,
		&resp.DistanceKm, &resp.Messages, &resp.Completion, &resp.CreatedAt,
		&resp.UpdatedAt, &resp.Version,
	)
	if err != nil {
		return nil, err
	}
	resp.Status = models.ResponseState(status)
	return &resp, nil
}
