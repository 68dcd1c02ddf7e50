package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/campus-events/internal/model"
)

// EventRepo is the MySQL EventStore. Domains are stored as a JSON array and
// the interest filter uses JSON_OVERLAPS (MySQL 8.0.17+).
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

const eventCols = `id, owner_id, organizer_name, name, title, description, event_date, event_time, occurs_at,
venue, domains, registration_link, thumbnail_url, is_approved, created_at, updated_at`

// Create inserts e. The caller assigns ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	domains, err := json.Marshal(e.Domains)
	if err != nil {
		return err
	}
	const q = `INSERT INTO events (` + eventCols + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = r.db.ExecContext(ctx, q,
		e.ID, e.OwnerID, e.OrganizerName, e.Name, e.Title, nullString(e.Description), e.Date, e.Time, e.OccursAt.UTC(),
		e.Venue, domains, nullString(e.RegistrationLink), nullString(e.ThumbnailURL), e.IsApproved, e.CreatedAt, e.UpdatedAt)
	return mapWriteErr(err)
}

// GetByID returns ErrNotFound if there is no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	const q = `SELECT ` + eventCols + ` FROM events WHERE id = ?`
	e, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListUpcoming returns one page of events at or after f.From, earliest first.
// Ties on occurs_at are ordered by id so consecutive pages never overlap.
func (r *EventRepo) ListUpcoming(ctx context.Context, f EventFilter, p model.Page) ([]model.Event, int64, error) {
	where := `occurs_at >= ?`
	args := []any{f.From.UTC()}
	if len(f.Domains) > 0 {
		bs, err := json.Marshal(f.Domains)
		if err != nil {
			return nil, 0, err
		}
		where += ` AND JSON_OVERLAPS(domains, CAST(? AS JSON))`
		args = append(args, string(bs))
	}
	return r.page(ctx, where, `occurs_at ASC, id ASC`, args, p)
}

// ListByOwner returns every event the owner created regardless of date,
// latest first.
func (r *EventRepo) ListByOwner(ctx context.Context, ownerID string, p model.Page) ([]model.Event, int64, error) {
	return r.page(ctx, `owner_id = ?`, `occurs_at DESC, id DESC`, []any{ownerID}, p)
}

func (r *EventRepo) page(ctx context.Context, where, order string, args []any, p model.Page) ([]model.Event, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Event{}, 0, nil
	}
	q := `SELECT ` + eventCols + ` FROM events WHERE ` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// Update writes every mutable column of e inside a transaction that first
// locks the row and checks ownership.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	domains, err := json.Marshal(e.Domains)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOwned(ctx, tx, e.ID, e.OwnerID); err != nil {
		return err
	}
	const q = `UPDATE events SET organizer_name=?, name=?, title=?, description=?, event_date=?, event_time=?,
occurs_at=?, venue=?, domains=?, registration_link=?, thumbnail_url=?, is_approved=?, updated_at=? WHERE id=?`
	if _, err := tx.ExecContext(ctx, q,
		e.OrganizerName, e.Name, e.Title, nullString(e.Description), e.Date, e.Time, e.OccursAt.UTC(), e.Venue,
		domains, nullString(e.RegistrationLink), nullString(e.ThumbnailURL), e.IsApproved, e.UpdatedAt, e.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes an event owned by ownerID.
func (r *EventRepo) Delete(ctx context.Context, id, ownerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOwned(ctx, tx, id, ownerID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteBefore removes all events that occurred before cutoff and returns
// the deleted rows so callers can clean up their thumbnails.
func (r *EventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+eventCols+` FROM events WHERE occurs_at < ? FOR UPDATE`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	var stale []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE occurs_at < ?`, cutoff.UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stale, nil
}

// lockOwned locks the event row and verifies the owner.
func lockOwned(ctx context.Context, tx *sql.Tx, id, ownerID string) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT owner_id FROM events WHERE id = ? FOR UPDATE`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != ownerID {
		return ErrForbidden
	}
	return nil
}

func scanEvent(s scanner) (*model.Event, error) {
	var (
		e                        model.Event
		desc, regLink, thumbnail sql.NullString
		domains                  []byte
	)
	if err := s.Scan(&e.ID, &e.OwnerID, &e.OrganizerName, &e.Name, &e.Title, &desc, &e.Date, &e.Time, &e.OccursAt,
		&e.Venue, &domains, &regLink, &thumbnail, &e.IsApproved, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Description = desc.String
	e.RegistrationLink = regLink.String
	e.ThumbnailURL = thumbnail.String
	e.Domains = []string{}
	if len(domains) > 0 {
		if err := json.Unmarshal(domains, &e.Domains); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
