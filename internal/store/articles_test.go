package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsroom/internal/media"
)

func TestInTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.CreateArticle(ctx, "half done", "body", 1, time.Now()); err != nil {
			t.Fatalf("CreateArticle: %v", err)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if _, err := s.FindArticleByTitle(ctx, "half done"); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("rolled-back article is visible: %v", err)
	}
}

func TestAttachCategoriesIgnoresUnknownIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	news, err := s.InsertCategory(ctx, "news")
	if err != nil {
		t.Fatalf("InsertCategory: %v", err)
	}
	sport, err := s.InsertCategory(ctx, "sport")
	if err != nil {
		t.Fatalf("InsertCategory: %v", err)
	}

	var articleID int64
	err = s.InTx(ctx, func(tx *Tx) error {
		id, err := tx.CreateArticle(ctx, "derby", "body", 1, time.Now())
		if err != nil {
			return err
		}
		articleID = id
		n, err := tx.AttachCategories(ctx, id, []int64{news, 9999, sport, news})
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("expected 2 attached, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	ids, err := s.ArticleCategoryIDs(ctx, articleID)
	if err != nil {
		t.Fatalf("ArticleCategoryIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != news || ids[1] != sport {
		t.Fatalf("unexpected category ids: %v", ids)
	}
}

func TestMediaAttachment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var articleID int64
	err := s.InTx(ctx, func(tx *Tx) error {
		id, err := tx.CreateArticle(ctx, "with media", "body", 1, time.Now())
		if err != nil {
			return err
		}
		articleID = id
		img, err := tx.CreateMedia(ctx, media.KindImage, "/media/a.jpg")
		if err != nil {
			return err
		}
		if err := tx.AttachMedia(ctx, id, img); err != nil {
			return err
		}
		vid, err := tx.CreateMedia(ctx, media.KindVideo, "https://youtu.be/abc123")
		if err != nil {
			return err
		}
		return tx.AttachMedia(ctx, id, vid)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	recs, err := s.ArticleMedia(ctx, articleID)
	if err != nil {
		t.Fatalf("ArticleMedia: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 media records, got %d", len(recs))
	}
	if recs[0].Kind != media.KindImage || recs[0].URL != "/media/a.jpg" {
		t.Fatalf("unexpected image record: %+v", recs[0])
	}
	if recs[1].Kind != media.KindVideo {
		t.Fatalf("unexpected video record: %+v", recs[1])
	}
}

func TestEnsureCategoriesIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnsureCategories(ctx, []string{"news", "sport", ""}); err != nil {
		t.Fatalf("EnsureCategories: %v", err)
	}
	if err := s.EnsureCategories(ctx, []string{"news", "culture"}); err != nil {
		t.Fatalf("second EnsureCategories: %v", err)
	}

	var article int64
	err := s.InTx(ctx, func(tx *Tx) error {
		id, err := tx.CreateArticle(ctx, "seeded", "body", 1, time.Now())
		if err != nil {
			return err
		}
		article = id
		n, err := tx.AttachCategories(ctx, id, []int64{1, 2, 3})
		if err != nil {
			return err
		}
		if n != 3 {
			t.Fatalf("expected 3 seeded categories, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	_ = article
}

func TestPublishedAtIsPreserved(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	promised := time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC)

	var id int64
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.CreateArticle(ctx, "promised", "body", 1, promised)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	a, err := s.GetArticle(ctx, id)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if !a.PublishedAt.Equal(promised) {
		t.Fatalf("publishedAt mismatch: %v vs %v", a.PublishedAt, promised)
	}
}
