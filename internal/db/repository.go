package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/brightpath-energy/fieldsync/internal/models"
)

// Repository provides data access for the mutation queue, the dead-letter
// store and offline photos.
//
// The sync engine is the only writer during a drain pass (single-flight),
// but handlers and the intake watcher may write concurrently; SQLite's
// single-connection setup in Open serializes those writes.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnqueueMutation inserts a mutation, or overwrites it in place when the id
// already exists (retry bookkeeping updates reuse this path). Duplicate
// resource/type combinations are allowed and processed independently.
func (r *Repository) EnqueueMutation(m *models.Mutation) error {
	query := `
	INSERT INTO mutation_queue (id, type, resource, payload, retry_count, last_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		payload = excluded.payload,
		retry_count = excluded.retry_count,
		last_error = excluded.last_error`
	_, err := r.db.Exec(query,
		m.ID, string(m.Type), string(m.Resource), string(m.Payload),
		m.RetryCount, m.LastError, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

// ListPendingMutations returns all live mutations in FIFO order. rowid breaks
// ties between mutations enqueued in the same nanosecond.
func (r *Repository) ListPendingMutations() ([]*models.Mutation, error) {
	query := `
	SELECT id, type, resource, payload, retry_count, last_error, created_at
	FROM mutation_queue
	ORDER BY created_at ASC, rowid ASC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending mutations: %w", err)
	}
	defer rows.Close()

	var mutations []*models.Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

// GetMutation returns a single live mutation by id.
func (r *Repository) GetMutation(id models.UUID) (*models.Mutation, error) {
	query := `
	SELECT id, type, resource, payload, retry_count, last_error, created_at
	FROM mutation_queue WHERE id = ?`
	row := r.db.QueryRow(query, id)
	return scanMutation(row)
}

// CountPendingMutations returns the number of live mutations.
func (r *Repository) CountPendingMutations() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM mutation_queue").Scan(&count)
	return count, err
}

// RemoveMutation deletes a live mutation. Removing an absent id is a no-op.
func (r *Repository) RemoveMutation(id models.UUID) error {
	if _, err := r.db.Exec("DELETE FROM mutation_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove mutation: %w", err)
	}
	return nil
}

// MoveToDeadLetter persists a mutation into the dead-letter store. The live
// row is not touched; the caller removes it independently.
func (r *Repository) MoveToDeadLetter(m *models.Mutation) error {
	query := `
	INSERT OR REPLACE INTO failed_mutations
		(id, type, resource, payload, retry_count, last_error, created_at, failed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		m.ID, string(m.Type), string(m.Resource), string(m.Payload),
		m.RetryCount, m.LastError, m.CreatedAt, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to dead-letter mutation: %w", err)
	}
	return nil
}

// ListFailedMutations returns all dead-lettered mutations, oldest first.
func (r *Repository) ListFailedMutations() ([]*models.FailedMutation, error) {
	query := `
	SELECT id, type, resource, payload, retry_count, last_error, created_at, failed_at
	FROM failed_mutations
	ORDER BY failed_at ASC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed mutations: %w", err)
	}
	defer rows.Close()

	var failed []*models.FailedMutation
	for rows.Next() {
		var f models.FailedMutation
		var typ, resource, payload string
		if err := rows.Scan(&f.ID, &typ, &resource, &payload,
			&f.RetryCount, &f.LastError, &f.CreatedAt, &f.FailedAt); err != nil {
			return nil, err
		}
		f.Type = models.MutationType(typ)
		f.Resource = models.Resource(resource)
		f.Payload = []byte(payload)
		failed = append(failed, &f)
	}
	return failed, rows.Err()
}

// PurgeFailedMutation permanently deletes a dead-letter record.
func (r *Repository) PurgeFailedMutation(id models.UUID) error {
	res, err := r.db.Exec("DELETE FROM failed_mutations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to purge dead-letter record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RequeueFailedMutation moves a dead-letter record back into the live queue
// with a reset retry budget. The mutation keeps its original created_at, so
// it re-enters the FIFO at its original position.
func (r *Repository) RequeueFailedMutation(id models.UUID) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
	SELECT id, type, resource, payload, created_at
	FROM failed_mutations WHERE id = ?`, id)

	var m models.Mutation
	var typ, resource, payload string
	if err := row.Scan(&m.ID, &typ, &resource, &payload, &m.CreatedAt); err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT OR REPLACE INTO mutation_queue
		(id, type, resource, payload, retry_count, last_error, created_at)
	VALUES (?, ?, ?, ?, 0, '', ?)`,
		m.ID, typ, resource, payload, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to requeue mutation: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM failed_mutations WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove dead-letter record: %w", err)
	}

	return tx.Commit()
}

// SavePhoto inserts or replaces an offline photo.
func (r *Repository) SavePhoto(p *models.Photo) error {
	query := `
	INSERT OR REPLACE INTO photos
		(id, inspection_id, data, caption, category, content_type, synced, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		p.ID, p.InspectionID, p.Data, p.Caption, p.Category,
		p.ContentType, boolToInt(p.Synced), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save photo: %w", err)
	}
	return nil
}

// GetPhoto returns a photo by id.
func (r *Repository) GetPhoto(id models.UUID) (*models.Photo, error) {
	query := `
	SELECT id, inspection_id, data, caption, category, content_type, synced, created_at
	FROM photos WHERE id = ?`
	return scanPhoto(r.db.QueryRow(query, id))
}

// ListUnsyncedPhotos returns all photos pending upload, oldest first.
func (r *Repository) ListUnsyncedPhotos() ([]*models.Photo, error) {
	query := `
	SELECT id, inspection_id, data, caption, category, content_type, synced, created_at
	FROM photos
	WHERE synced = 0
	ORDER BY created_at ASC, rowid ASC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// CountUnsyncedPhotos returns the number of photos pending upload.
func (r *Repository) CountUnsyncedPhotos() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM photos WHERE synced = 0").Scan(&count)
	return count, err
}

// MarkPhotoSynced flips a photo's synced flag after a successful upload.
func (r *Repository) MarkPhotoSynced(id models.UUID) error {
	res, err := r.db.Exec("UPDATE photos SET synced = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark photo synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeletePhoto permanently removes a photo row. Returns sql.ErrNoRows when
// the photo does not exist.
func (r *Repository) DeletePhoto(id models.UUID) error {
	res, err := r.db.Exec("DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMutation(s scanner) (*models.Mutation, error) {
	var m models.Mutation
	var typ, resource, payload string
	if err := s.Scan(&m.ID, &typ, &resource, &payload,
		&m.RetryCount, &m.LastError, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Type = models.MutationType(typ)
	m.Resource = models.Resource(resource)
	m.Payload = []byte(payload)
	return &m, nil
}

func scanPhoto(s scanner) (*models.Photo, error) {
	var p models.Photo
	var synced int
	if err := s.Scan(&p.ID, &p.InspectionID, &p.Data, &p.Caption,
		&p.Category, &p.ContentType, &synced, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Synced = synced != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
