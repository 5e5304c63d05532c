package scheduler

import (
	"context"
	"os"
	"strings"
	"time"

	"newsroom/internal/media"
	"newsroom/internal/publish"
	"newsroom/internal/store"
	logx "newsroom/pkg/logx"
)

// ErrNotFound is returned by Cancel and PublishNow when the id does not
// exist or does not belong to the caller. The two cases are deliberately
// indistinguishable.
var ErrNotFound = store.ErrNotFound

// Schedule validates the publish time, stages any freshly uploaded images,
// and persists the pending article. The inbox originals of staged uploads
// are removed only after the staged copies are safely persisted.
func (s *Service) Schedule(ctx context.Context, draft store.Draft, uploads []media.Upload, scheduledAt time.Time, ownerID int64) (store.PendingArticle, error) {
	s.mu.Lock()
	minLead, maxHorizon := s.cfg.MinLead, s.cfg.MaxHorizon
	s.mu.Unlock()

	when, err := ValidateSchedule(scheduledAt, s.now(), minLead, maxHorizon)
	if err != nil {
		return store.PendingArticle{}, err
	}
	if strings.TrimSpace(draft.Title) == "" {
		return store.PendingArticle{}, rejected("title is required")
	}
	if len(draft.CategoryIDs) == 0 {
		return store.PendingArticle{}, rejected("at least one category is required")
	}

	staged := make([]media.Ref, 0, len(uploads))
	for _, up := range uploads {
		ref, err := s.stager.StageForLater(up)
		if err != nil {
			// Roll back the copies made so far; the inbox originals are
			// still untouched.
			for _, r := range staged {
				_ = s.stager.ReleaseStaged(r)
			}
			return store.PendingArticle{}, err
		}
		staged = append(staged, ref)
	}
	draft.MediaFiles = append(draft.MediaFiles, staged...)
	draft.AuthorID = ownerID

	item, err := s.store.Insert(ctx, draft, when, ownerID)
	if err != nil {
		for _, r := range staged {
			_ = s.stager.ReleaseStaged(r)
		}
		return store.PendingArticle{}, err
	}

	// Staged copies are persisted and referenced; the inbox originals may
	// go now.
	for _, up := range uploads {
		if err := os.Remove(up.Path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("inbox original not removed after staging", logx.String("path", up.Path), logx.Err(err))
		}
	}

	s.log.Info("article scheduled",
		logx.Int64("pending_id", item.ID),
		logx.String("title", item.Title),
		logx.String("publish_at", formatWhen(item.ScheduledAt)),
		logx.Int64("owner", ownerID),
		logx.Int("images", len(staged)))
	return item, nil
}

// Cancel removes a pending article owned by the caller and releases its
// staged files. Returns ErrNotFound for foreign or missing ids, and for
// items a promotion has already claimed: once a row is publishing it can
// no longer be cancelled.
func (s *Service) Cancel(ctx context.Context, id, ownerID int64) error {
	item, err := s.store.FindOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	removed, err := s.store.RemoveOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !removed {
		// Lost the race against a promotion claim. The engine owns the
		// row and its staged files now; touching them here would yank
		// images out from under a publish in flight.
		return ErrNotFound
	}
	for _, ref := range item.Payload.MediaFiles {
		if err := s.stager.ReleaseStaged(ref); err != nil {
			s.log.Warn("staged file not released on cancel", logx.String("original", ref.OriginalName), logx.Err(err))
		}
	}
	s.log.Info("scheduled article cancelled", logx.Int64("pending_id", id), logx.Int64("owner", ownerID))
	return nil
}

// PublishNow promotes one pending article out of band, bypassing the
// due-time check. Works on scheduled items and on error-status items
// (manual republish). Returns the new article id.
func (s *Service) PublishNow(ctx context.Context, id, ownerID int64) (int64, error) {
	item, err := s.store.FindOwned(ctx, id, ownerID)
	if err != nil {
		return 0, err
	}
	claimed, err := s.store.ClaimForPublish(ctx, item.ID)
	if err != nil {
		return 0, err
	}
	if !claimed {
		// A tick (or another publish-now) got there first.
		return 0, ErrNotFound
	}
	articleID, _, err := s.engine.PromoteClaimed(ctx, item)
	if err != nil {
		return 0, err
	}
	s.log.Info("published now", logx.Int64("pending_id", id), logx.Int64("article_id", articleID))
	return articleID, nil
}

// ListMine returns the caller's pending articles in every status.
func (s *Service) ListMine(ctx context.Context, ownerID int64) ([]ItemView, error) {
	items, err := s.store.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return views(items), nil
}

// ListAll is the admin view; authorization is enforced by the caller.
func (s *Service) ListAll(ctx context.Context) ([]ItemView, error) {
	items, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return views(items), nil
}

// Tick runs one promotion cycle immediately. This is what the periodic
// timer invokes; it is exported for tests and operational tooling.
func (s *Service) Tick(ctx context.Context) (publish.Report, error) {
	return s.engine.Tick(ctx)
}

// SweepStaging removes staging files older than the retention window that
// belong to no live pending article. A backstop, never the primary cleanup
// path.
func (s *Service) SweepStaging(ctx context.Context) (int, error) {
	items, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	tokens := make([]string, 0, len(items))
	for _, item := range items {
		for _, ref := range item.Payload.MediaFiles {
			if ref.Token != "" {
				tokens = append(tokens, ref.Token)
			}
		}
	}

	s.mu.Lock()
	retention := s.cfg.StagingRetention
	s.mu.Unlock()

	return s.stager.SweepStale(s.now(), retention, func(name string) bool {
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				return true
			}
		}
		return false
	})
}

func views(items []store.PendingArticle) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, item := range items {
		out = append(out, toView(item))
	}
	return out
}
