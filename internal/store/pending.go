package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const pendingColumns = "id, title, scheduled_at, payload, status, owner_id, error_message, last_attempt_at, created_at"

// Insert persists a new pending article in status "scheduled".
func (s *Store) Insert(ctx context.Context, draft Draft, scheduledAt time.Time, ownerID int64) (PendingArticle, error) {
	payload, err := json.Marshal(draft)
	if err != nil {
		return PendingArticle{}, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC()

	q := s.sb.
		Insert("pending_articles").
		Columns("title", "scheduled_at", "payload", "status", "owner_id", "created_at").
		Values(draft.Title, scheduledAt.UnixMilli(), string(payload), StatusScheduled, ownerID, now.UnixMilli())

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return PendingArticle{}, fmt.Errorf("build pending insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return PendingArticle{}, fmt.Errorf("insert pending article: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PendingArticle{}, err
	}

	return PendingArticle{
		ID:          id,
		Title:       draft.Title,
		ScheduledAt: scheduledAt.UTC(),
		Payload:     draft,
		Status:      StatusScheduled,
		OwnerID:     ownerID,
		CreatedAt:   now,
	}, nil
}

// DueItems returns all scheduled rows whose trigger time has passed,
// earliest first so a backlog drains fairly.
func (s *Store) DueItems(ctx context.Context, now time.Time) ([]PendingArticle, error) {
	q := s.sb.
		Select(pendingColumns).
		From("pending_articles").
		Where(sq.Eq{"status": StatusScheduled}).
		Where(sq.LtOrEq{"scheduled_at": now.UnixMilli()}).
		OrderBy("scheduled_at ASC", "id ASC")
	return s.queryPending(ctx, q)
}

// MarkPublishing conditionally moves a row from scheduled to publishing.
// It reports false when the row was no longer in scheduled state (already
// claimed by a tick, cancelled, or errored), which makes it the race guard
// between concurrent cancel and promotion.
func (s *Store) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	q := s.sb.
		Update("pending_articles").
		Set("status", StatusPublishing).
		Where(sq.Eq{"id": id, "status": StatusScheduled})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimForPublish moves a row to publishing for an out-of-band publish-now.
// Unlike MarkPublishing it also claims error-status rows, which is the
// manual republish path for failed promotions.
func (s *Store) ClaimForPublish(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_articles SET status = ? WHERE id = ? AND status IN (?, ?)`,
		StatusPublishing, id, StatusScheduled, StatusError,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkError records a failed promotion attempt. The row stays inspectable
// via listings; it is not retried automatically.
func (s *Store) MarkError(ctx context.Context, id int64, message string, attemptTime time.Time) error {
	q := s.sb.
		Update("pending_articles").
		Set("status", StatusError).
		Set("error_message", nullStr(message)).
		Set("last_attempt_at", nullMilli(attemptTime)).
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// RemoveOwned deletes an owned row only while nothing is publishing it
// (status scheduled or error). It reports false when the row was already
// claimed, settled, or foreign — the cancel-side mirror of the
// MarkPublishing race guard.
func (s *Store) RemoveOwned(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_articles WHERE id = ? AND owner_id = ? AND status IN (?, ?)`,
		id, ownerID, StatusScheduled, StatusError,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Remove(ctx context.Context, id int64) error {
	sqlStr, args, err := s.sb.Delete("pending_articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// FindOwned fetches a pending article only if it belongs to the given
// owner. A foreign or missing id both surface as ErrNotFound so callers
// cannot probe for other authors' items.
func (s *Store) FindOwned(ctx context.Context, id, ownerID int64) (PendingArticle, error) {
	q := s.sb.
		Select(pendingColumns).
		From("pending_articles").
		Where(sq.Eq{"id": id, "owner_id": ownerID})
	items, err := s.queryPending(ctx, q)
	if err != nil {
		return PendingArticle{}, err
	}
	if len(items) == 0 {
		return PendingArticle{}, ErrNotFound
	}
	return items[0], nil
}

// ListForOwner returns the owner's pending articles in every status;
// callers decide what to show.
func (s *Store) ListForOwner(ctx context.Context, ownerID int64) ([]PendingArticle, error) {
	q := s.sb.
		Select(pendingColumns).
		From("pending_articles").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("scheduled_at ASC", "id ASC")
	return s.queryPending(ctx, q)
}

// ListAll is the admin view over every pending article.
func (s *Store) ListAll(ctx context.Context) ([]PendingArticle, error) {
	q := s.sb.
		Select(pendingColumns).
		From("pending_articles").
		OrderBy("scheduled_at ASC", "id ASC")
	return s.queryPending(ctx, q)
}

func (s *Store) queryPending(ctx context.Context, q sq.SelectBuilder) ([]PendingArticle, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending articles: %w", err)
	}
	defer rows.Close()

	var items []PendingArticle
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanPending(rows *sql.Rows) (PendingArticle, error) {
	var (
		item        PendingArticle
		scheduledMS int64
		createdMS   int64
		payload     string
		status      string
		errMsg      sql.NullString
		attemptMS   sql.NullInt64
	)
	if err := rows.Scan(&item.ID, &item.Title, &scheduledMS, &payload, &status, &item.OwnerID, &errMsg, &attemptMS, &createdMS); err != nil {
		return PendingArticle{}, fmt.Errorf("scan pending article: %w", err)
	}
	item.ScheduledAt = time.UnixMilli(scheduledMS).UTC()
	item.CreatedAt = time.UnixMilli(createdMS).UTC()
	item.Status = Status(status)
	if errMsg.Valid {
		item.ErrorMessage = errMsg.String
	}
	if attemptMS.Valid {
		item.LastAttemptAt = time.UnixMilli(attemptMS.Int64).UTC()
	}
	if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
		// A row with an undecodable payload must stay listable; the
		// promotion engine surfaces the decode error per item.
		return item, nil
	}
	return item, nil
}

// DecodeDraft re-parses a pending row's payload, surfacing decode errors
// to the promotion path (listings tolerate a corrupt payload, promotion
// must not).
func DecodeDraft(raw []byte) (Draft, error) {
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return Draft{}, fmt.Errorf("decode payload: %w", err)
	}
	return d, nil
}

// RawPayload returns the stored payload bytes for one row.
func (s *Store) RawPayload(ctx context.Context, id int64) ([]byte, error) {
	sqlStr, args, err := s.sb.Select("payload").From("pending_articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var payload string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(payload), nil
}
