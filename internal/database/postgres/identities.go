package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// IdentityRepository provides PostgreSQL-backed identity and attendance storage.
type IdentityRepository struct {
	pool *Pool
}

var _ database.Store = (*IdentityRepository)(nil)

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// validID reports whether id can be compared with a UUID column at all.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const identityColumns = `id, seq, name, phone, loyalty_points, attendance_count, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*database.Identity, error) {
	var identity database.Identity
	err := row.Scan(
		&identity.ID, &identity.Seq, &identity.Name, &identity.Phone,
		&identity.LoyaltyPoints, &identity.AttendanceCount, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// loadGalleries fills in the embeddings of the given identities, oldest first.
func (r *IdentityRepository) loadGalleries(ctx context.Context, identities []*database.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	byID := make(map[string]*database.Identity, len(identities))
	ids := make([]string, len(identities))
	for i, identity := range identities {
		byID[identity.ID] = identity
		ids[i] = identity.ID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, embedding
		FROM identity_embeddings
		WHERE identity_id = ANY($1::uuid[])
		ORDER BY identity_id, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			identityID string
			vec        pgvector.Vector
		)
		if err := rows.Scan(&identityID, &vec); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		if identity, ok := byID[identityID]; ok {
			identity.Embeddings = append(identity.Embeddings, facematch.Vector(vec.Slice()))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate embeddings: %w", err)
	}
	return nil
}

// ListIdentities returns all identities with their galleries in enrollment order.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var ptrs []*database.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ptrs = append(ptrs, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	rows.Close()

	if err := r.loadGalleries(ctx, ptrs); err != nil {
		return nil, err
	}

	identities := make([]database.Identity, len(ptrs))
	for i, p := range ptrs {
		identities[i] = *p
	}
	return identities, nil
}

func (r *IdentityRepository) getOne(ctx context.Context, where string, arg any) (*database.Identity, error) {
	identity, err := scanIdentity(r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if err := r.loadGalleries(ctx, []*database.Identity{identity}); err != nil {
		return nil, err
	}
	return identity, nil
}

// GetIdentity retrieves an identity by ID.
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	if !validID(id) {
		return nil, database.ErrNotFound
	}
	return r.getOne(ctx, "id = $1", id)
}

// GetIdentityByName retrieves an identity by its normalized name.
func (r *IdentityRepository) GetIdentityByName(ctx context.Context, name string) (*database.Identity, error) {
	return r.getOne(ctx, "name_key = $1", facematch.NormalizePersonName(name))
}

func (r *IdentityRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM identities WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}
	return exists, nil
}

// ListAttendance returns the attendance records of an identity ordered by day.
func (r *IdentityRepository) ListAttendance(ctx context.Context, id string) ([]database.AttendanceRecord, error) {
	if !validID(id) {
		return nil, database.ErrNotFound
	}

	rows, err := r.pool.Query(ctx,
		"SELECT day, created_at FROM attendance WHERE identity_id = $1 ORDER BY day", id)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec := database.AttendanceRecord{IdentityID: id}
		if err := rows.Scan(&rec.Day, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		rec.Day = database.AttendanceDay(rec.Day)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}

	if len(records) == 0 {
		ok, err := r.exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, database.ErrNotFound
		}
	}
	return records, nil
}

// Count returns the number of identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// CreateIdentity inserts an identity with its enrollment gallery.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	err = tx.QueryRowContext(ctx, `
		INSERT INTO identities (id, name, name_key, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, created_at, updated_at
	`, identity.ID, identity.Name, facematch.NormalizePersonName(identity.Name), identity.Phone,
	).Scan(&identity.Seq, &identity.CreatedAt, &identity.UpdatedAt)
	if isUniqueViolation(err) {
		return database.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	for _, emb := range identity.Embeddings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO identity_embeddings (identity_id, embedding) VALUES ($1, $2)",
			identity.ID, pgvector.NewVector(emb),
		); err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity: %w", err)
	}
	return nil
}

// RecordRecognition appends the embedding, trims the gallery and records attendance
// in one transaction holding the identity row lock.
func (r *IdentityRepository) RecordRecognition(
	ctx context.Context, id string, embedding []float32, day time.Time, capacity, reward int,
) (*database.RecognitionUpdate, error) {
	if !validID(id) {
		return nil, database.ErrNotFound
	}
	if capacity < 1 {
		capacity = 1
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	update := &database.RecognitionUpdate{IdentityID: id}

	err = tx.QueryRowContext(ctx, "SELECT name FROM identities WHERE id = $1 FOR UPDATE", id).Scan(&update.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock identity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO identity_embeddings (identity_id, embedding) VALUES ($1, $2)",
		id, pgvector.NewVector(embedding),
	); err != nil {
		return nil, fmt.Errorf("insert embedding: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM identity_embeddings
		WHERE identity_id = $1 AND id NOT IN (
			SELECT id FROM identity_embeddings WHERE identity_id = $1 ORDER BY id DESC LIMIT $2
		)
	`, id, capacity)
	if err != nil {
		return nil, fmt.Errorf("trim gallery: %w", err)
	}
	evicted, _ := res.RowsAffected()
	update.Evicted = int(evicted)

	res, err = tx.ExecContext(ctx,
		"INSERT INTO attendance (identity_id, day) VALUES ($1, $2::date) ON CONFLICT (identity_id, day) DO NOTHING",
		id, database.FormatDay(day),
	)
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}
	inserted, _ := res.RowsAffected()
	update.AttendanceRecorded = inserted == 1

	points := 0
	visits := 0
	if update.AttendanceRecorded {
		points, visits = reward, 1
	}
	err = tx.QueryRowContext(ctx, `
		UPDATE identities
		SET loyalty_points = loyalty_points + $2,
		    attendance_count = attendance_count + $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING loyalty_points, attendance_count
	`, id, points, visits).Scan(&update.LoyaltyPoints, &update.AttendanceCount)
	if err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM identity_embeddings WHERE identity_id = $1", id,
	).Scan(&update.GallerySize)
	if err != nil {
		return nil, fmt.Errorf("count gallery: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recognition: %w", err)
	}
	return update, nil
}

// UpdateIdentity changes the display name and phone of an identity.
func (r *IdentityRepository) UpdateIdentity(ctx context.Context, id, name, phone string) error {
	if !validID(id) {
		return database.ErrNotFound
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE identities SET name = $2, name_key = $3, phone = $4, updated_at = NOW()
		WHERE id = $1
	`, id, name, facematch.NormalizePersonName(name), phone)
	if isUniqueViolation(err) {
		return database.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeleteIdentity removes an identity; its gallery and attendance cascade.
func (r *IdentityRepository) DeleteIdentity(ctx context.Context, id string) error {
	if !validID(id) {
		return database.ErrNotFound
	}
	res, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}
