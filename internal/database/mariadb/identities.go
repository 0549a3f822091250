package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// errDuplicateEntry is the MySQL error number for unique key violations.
const errDuplicateEntry = 1062

// IdentityRepository provides MariaDB-backed identity and attendance storage.
type IdentityRepository struct {
	pool *Pool
}

var _ database.Store = (*IdentityRepository)(nil)

// NewIdentityRepository creates a new MariaDB identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}

// Embeddings are stored as a JSON list [e1, e2, ...].
func encodeEmbedding(emb []float32) (string, error) {
	data, err := json.Marshal(emb)
	if err != nil {
		return "", fmt.Errorf("marshal embedding: %w", err)
	}
	return string(data), nil
}

func decodeEmbedding(data string) (facematch.Vector, error) {
	var emb []float32
	if err := json.Unmarshal([]byte(data), &emb); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return facematch.Vector(emb), nil
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

func (r *IdentityRepository) loadGalleries(ctx context.Context, identities []*database.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	byID := make(map[string]*database.Identity, len(identities))
	placeholders := make([]string, len(identities))
	args := make([]any, len(identities))
	for i, identity := range identities {
		byID[identity.ID] = identity
		placeholders[i] = "?"
		args[i] = identity.ID
	}

	query := `SELECT identity_id, embedding FROM identity_embeddings WHERE identity_id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY identity_id, id`
	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identityID, data string
		if err := rows.Scan(&identityID, &data); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		emb, err := decodeEmbedding(data)
		if err != nil {
			return err
		}
		if identity, ok := byID[identityID]; ok {
			identity.Embeddings = append(identity.Embeddings, emb)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate embeddings: %w", err)
	}
	return nil
}

// ListIdentities returns all identities with their galleries in enrollment order.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY seq`)
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
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg)
	identity, err := scanIdentity(row)
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
	return r.getOne(ctx, "id = ?", id)
}

// GetIdentityByName retrieves an identity by its normalized name.
func (r *IdentityRepository) GetIdentityByName(ctx context.Context, name string) (*database.Identity, error) {
	return r.getOne(ctx, "name_key = ?", facematch.NormalizePersonName(name))
}

// ListAttendance returns the attendance records of an identity ordered by day.
func (r *IdentityRepository) ListAttendance(ctx context.Context, id string) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT day, created_at FROM attendance WHERE identity_id = ? ORDER BY day", id)
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
		var exists bool
		err := r.pool.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM identities WHERE id = ?)", id).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check identity exists: %w", err)
		}
		if !exists {
			return nil, database.ErrNotFound
		}
	}
	return records, nil
}

// Count returns the number of identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// CreateIdentity inserts an identity with its enrollment gallery.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		"INSERT INTO identities (id, name, name_key, phone) VALUES (?, ?, ?, ?)",
		identity.ID, identity.Name, facematch.NormalizePersonName(identity.Name), identity.Phone,
	)
	if isDuplicate(err) {
		return database.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	for _, emb := range identity.Embeddings {
		data, err := encodeEmbedding(emb)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO identity_embeddings (identity_id, embedding) VALUES (?, ?)", identity.ID, data,
		); err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx,
		"SELECT seq, created_at, updated_at FROM identities WHERE id = ?", identity.ID,
	).Scan(&identity.Seq, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("read identity: %w", err)
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
	if capacity < 1 {
		capacity = 1
	}
	data, err := encodeEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	update := &database.RecognitionUpdate{IdentityID: id}

	err = tx.QueryRowContext(ctx, "SELECT name FROM identities WHERE id = ? FOR UPDATE", id).Scan(&update.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock identity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO identity_embeddings (identity_id, embedding) VALUES (?, ?)", id, data,
	); err != nil {
		return nil, fmt.Errorf("insert embedding: %w", err)
	}

	ids, err := embeddingIDs(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	update.GallerySize = len(ids)
	if len(ids) > capacity {
		// ids are newest first; everything at or below ids[capacity] is evicted.
		res, err := tx.ExecContext(ctx,
			"DELETE FROM identity_embeddings WHERE identity_id = ? AND id <= ?", id, ids[capacity])
		if err != nil {
			return nil, fmt.Errorf("trim gallery: %w", err)
		}
		evicted, _ := res.RowsAffected()
		update.Evicted = int(evicted)
		update.GallerySize = capacity
	}

	res, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO attendance (identity_id, day) VALUES (?, ?)", id, database.FormatDay(day))
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}
	inserted, _ := res.RowsAffected()
	update.AttendanceRecorded = inserted == 1

	points, visits := 0, 0
	if update.AttendanceRecorded {
		points, visits = reward, 1
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE identities
		SET loyalty_points = loyalty_points + ?,
		    attendance_count = attendance_count + ?,
		    updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?
	`, points, visits, id); err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT loyalty_points, attendance_count FROM identities WHERE id = ?", id,
	).Scan(&update.LoyaltyPoints, &update.AttendanceCount)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recognition: %w", err)
	}
	return update, nil
}

// embeddingIDs returns the gallery row IDs of an identity, newest first.
func embeddingIDs(ctx context.Context, tx *sql.Tx, identityID string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM identity_embeddings WHERE identity_id = ? ORDER BY id DESC", identityID)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan gallery id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery: %w", err)
	}
	return ids, nil
}

// UpdateIdentity changes the display name and phone of an identity.
func (r *IdentityRepository) UpdateIdentity(ctx context.Context, id, name, phone string) error {
	// RowsAffected is 0 when nothing changes, so existence is checked separately.
	var exists bool
	err := r.pool.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM identities WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check identity exists: %w", err)
	}
	if !exists {
		return database.ErrNotFound
	}

	_, err = r.pool.db.ExecContext(ctx, `
		UPDATE identities SET name = ?, name_key = ?, phone = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?
	`, name, facematch.NormalizePersonName(name), phone, id)
	if isDuplicate(err) {
		return database.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// DeleteIdentity removes an identity; its gallery and attendance cascade.
func (r *IdentityRepository) DeleteIdentity(ctx context.Context, id string) error {
	res, err := r.pool.db.ExecContext(ctx, "DELETE FROM identities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}
