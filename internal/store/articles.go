package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var ErrArticleNotFound = errors.New("article not found")

// Tx exposes the article-side writes available inside one transaction.
type Tx struct {
	tx *sql.Tx
	sb sq.StatementBuilderType
}

// CreateArticle inserts a live article. publishedAt is the promised publish
// time, not the moment the insert runs.
func (t *Tx) CreateArticle(ctx context.Context, title, body string, ownerID int64, publishedAt time.Time) (int64, error) {
	q := t.sb.
		Insert("articles").
		Columns("title", "body", "owner_id", "published_at", "created_at").
		Values(title, body, ownerID, publishedAt.UnixMilli(), time.Now().UTC().UnixMilli())
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build article insert: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return res.LastInsertId()
}

// AttachCategories links the article to every given category id that
// actually exists, ignoring unknown ids and duplicates, and returns how
// many links were made. Callers treat zero as fatal.
func (t *Tx) AttachCategories(ctx context.Context, articleID int64, categoryIDs []int64) (int, error) {
	attached := 0
	for _, cid := range categoryIDs {
		// INSERT..SELECT keeps unknown ids a no-op instead of an error.
		res, err := t.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO article_categories(article_id, category_id)
			 SELECT ?, id FROM categories WHERE id = ?`,
			articleID, cid,
		)
		if err != nil {
			return attached, fmt.Errorf("attach category %d: %w", cid, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return attached, err
		}
		attached += int(n)
	}
	return attached, nil
}

// CreateMedia inserts a media record with a permanent URL.
func (t *Tx) CreateMedia(ctx context.Context, kind, url string) (int64, error) {
	q := t.sb.
		Insert("media").
		Columns("kind", "url", "created_at").
		Values(kind, url, time.Now().UTC().UnixMilli())
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert media: %w", err)
	}
	return res.LastInsertId()
}

func (t *Tx) AttachMedia(ctx context.Context, articleID, mediaID int64) error {
	q := t.sb.
		Insert("article_media").
		Columns("article_id", "media_id").
		Values(articleID, mediaID)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("attach media %d: %w", mediaID, err)
	}
	return nil
}

// ---- Category bootstrap and read-backs ----

// EnsureCategories creates any missing categories by name. Used at boot to
// seed the configured category list; existing rows are untouched.
func (s *Store) EnsureCategories(ctx context.Context, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO categories(name) VALUES(?)`, name); err != nil {
			return fmt.Errorf("ensure category %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) InsertCategory(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories(name) VALUES(?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (s *Store) GetArticle(ctx context.Context, id int64) (Article, error) {
	q := s.sb.
		Select("id", "title", "body", "owner_id", "published_at", "created_at").
		From("articles").
		Where(sq.Eq{"id": id})
	return s.queryArticle(ctx, q)
}

// FindArticleByTitle returns the most recently created article with the
// given title.
func (s *Store) FindArticleByTitle(ctx context.Context, title string) (Article, error) {
	q := s.sb.
		Select("id", "title", "body", "owner_id", "published_at", "created_at").
		From("articles").
		Where(sq.Eq{"title": title}).
		OrderBy("id DESC").
		Limit(1)
	return s.queryArticle(ctx, q)
}

func (s *Store) queryArticle(ctx context.Context, q sq.SelectBuilder) (Article, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Article{}, err
	}
	var (
		a           Article
		publishedMS int64
		createdMS   int64
	)
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&a.ID, &a.Title, &a.Body, &a.OwnerID, &publishedMS, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, ErrArticleNotFound
	}
	if err != nil {
		return Article{}, fmt.Errorf("query article: %w", err)
	}
	a.PublishedAt = time.UnixMilli(publishedMS).UTC()
	a.CreatedAt = time.UnixMilli(createdMS).UTC()
	return a, nil
}

func (s *Store) ArticleCategoryIDs(ctx context.Context, articleID int64) ([]int64, error) {
	sqlStr, args, err := s.sb.
		Select("category_id").
		From("article_categories").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("category_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ArticleMedia(ctx context.Context, articleID int64) ([]MediaRecord, error) {
	sqlStr, args, err := s.sb.
		Select("m.id", "m.kind", "m.url").
		From("media m").
		Join("article_media am ON am.media_id = m.id").
		Where(sq.Eq{"am.article_id": articleID}).
		OrderBy("m.id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []MediaRecord
	for rows.Next() {
		var r MediaRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.URL); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
