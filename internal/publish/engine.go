package publish

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"newsroom/internal/media"
	"newsroom/internal/store"
	logx "newsroom/pkg/logx"
)

// ErrNoCategories fails a promotion whose payload resolves to zero valid
// categories. Categories are mandatory; images are not.
var ErrNoCategories = errors.New("no valid categories resolved")

// Engine promotes due pending articles into live articles.
//
// All work for one tick runs sequentially; the atomic running flag skips an
// overlapping tick outright instead of queueing it (the next tick naturally
// picks up whatever is still due).
type Engine struct {
	store  *store.Store
	stager *media.Stager
	log    logx.Logger

	limiter    *rate.Limiter
	videoHosts []string
	now        func() time.Time

	running atomic.Bool
}

type Config struct {
	// MaxPerSecond bounds how many articles one tick may promote per
	// second, keeping a large backlog from hammering the disk. <=0
	// disables the bound.
	MaxPerSecond int

	// VideoHosts is the allow-list for external video URLs. Empty means
	// DefaultVideoHosts.
	VideoHosts []string

	// Clock returns the current time; tests inject a fake.
	Clock func() time.Time
}

func New(cfg Config, st *store.Store, stager *media.Stager, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	var limiter *rate.Limiter
	if cfg.MaxPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), cfg.MaxPerSecond)
	}
	hosts := cfg.VideoHosts
	if len(hosts) == 0 {
		hosts = DefaultVideoHosts
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:      st,
		stager:     stager,
		log:        log,
		limiter:    limiter,
		videoHosts: hosts,
		now:        now,
	}
}

// Tick runs one promotion cycle: fetch due items and promote them one at a
// time in scheduled order. Per-item failures are converted to error-status
// rows and collected in the report; they never abort the remaining queue.
func (e *Engine) Tick(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("promotion cycle already in flight; tick skipped")
		return Report{Overlapped: true}, nil
	}
	defer e.running.Store(false)

	now := e.now()
	due, err := e.store.DueItems(ctx, now)
	if err != nil {
		return Report{}, err
	}
	if len(due) == 0 {
		return Report{}, nil
	}
	e.log.Debug("promotion cycle started", logx.Int("due", len(due)), logx.Time("now", now))

	var report Report
	for _, item := range due {
		// Pace before claiming: a claimed row must always reach
		// PromoteClaimed and be settled, so nothing may fail between the
		// claim and the promotion.
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				// Shutdown mid-cycle; the remaining rows stay scheduled
				// and the next tick picks them up.
				return report, err
			}
		}
		claimed, err := e.store.MarkPublishing(ctx, item.ID)
		if err != nil {
			report.Failed = append(report.Failed, Failure{ID: item.ID, Reason: err.Error()})
			continue
		}
		if !claimed {
			// Raced with a cancel or a concurrent publish-now.
			continue
		}

		articleID, skips, err := e.PromoteClaimed(ctx, item)
		report.SkippedMedia = append(report.SkippedMedia, skips...)
		if err != nil {
			report.Failed = append(report.Failed, Failure{ID: item.ID, Reason: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, item.ID)
		e.log.Info("pending article promoted",
			logx.Int64("pending_id", item.ID),
			logx.Int64("article_id", articleID),
			logx.String("title", item.Title),
			logx.Time("scheduled_at", item.ScheduledAt))
	}
	return report, nil
}

// PromoteClaimed materializes one already-claimed (status=publishing)
// pending article and settles its row: removed on success, moved to error
// on failure. The caller must have won the MarkPublishing transition first.
func (e *Engine) PromoteClaimed(ctx context.Context, item store.PendingArticle) (int64, []MediaSkip, error) {
	articleID, skips, err := e.promoteOne(ctx, item)
	if err != nil {
		e.log.Warn("promotion failed",
			logx.Int64("pending_id", item.ID),
			logx.String("title", item.Title),
			logx.Err(err))
		if merr := e.store.MarkError(ctx, item.ID, err.Error(), e.now()); merr != nil {
			e.log.Error("failed to record promotion error", logx.Int64("pending_id", item.ID), logx.Err(merr))
		}
		return 0, skips, err
	}
	if err := e.store.Remove(ctx, item.ID); err != nil {
		// The article is live; a leftover pending row is re-claimed and
		// found idempotent on the next manual intervention.
		e.log.Error("promoted but pending row not removed", logx.Int64("pending_id", item.ID), logx.Err(err))
	}
	return articleID, skips, nil
}

func (e *Engine) promoteOne(ctx context.Context, item store.PendingArticle) (int64, []MediaSkip, error) {
	raw, err := e.store.RawPayload(ctx, item.ID)
	if err != nil {
		return 0, nil, err
	}
	draft, err := store.DecodeDraft(raw)
	if err != nil {
		return 0, nil, err
	}

	var (
		articleID int64
		skips     []MediaSkip
	)
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		// The displayed publish time is the promised one, not whenever
		// this tick happened to run.
		id, err := tx.CreateArticle(ctx, draft.Title, draft.Body, item.OwnerID, item.ScheduledAt)
		if err != nil {
			return err
		}

		attached, err := tx.AttachCategories(ctx, id, draft.CategoryIDs)
		if err != nil {
			return err
		}
		if attached == 0 {
			return ErrNoCategories
		}

		for _, ref := range draft.MediaFiles {
			loc, resolved, err := e.stager.Promote(ref)
			if err != nil {
				return err
			}
			if !resolved {
				// Prefer a published article missing one image over no
				// article at all. Recorded, never silently dropped.
				skips = append(skips, MediaSkip{ItemID: item.ID, OriginalName: ref.OriginalName})
				e.log.Warn("image unresolvable at promotion; publishing without it",
					logx.Int64("pending_id", item.ID),
					logx.String("original", ref.OriginalName),
					logx.String("token", ref.Token))
				continue
			}
			mediaID, err := tx.CreateMedia(ctx, media.KindImage, loc.URL)
			if err != nil {
				return err
			}
			if err := tx.AttachMedia(ctx, id, mediaID); err != nil {
				return err
			}
		}

		if draft.VideoURL != "" {
			if allowedVideoURL(draft.VideoURL, e.videoHosts) {
				mediaID, err := tx.CreateMedia(ctx, media.KindVideo, draft.VideoURL)
				if err != nil {
					return err
				}
				if err := tx.AttachMedia(ctx, id, mediaID); err != nil {
					return err
				}
			} else {
				e.log.Warn("video url rejected by allow-list",
					logx.Int64("pending_id", item.ID),
					logx.String("url", draft.VideoURL))
			}
		}

		articleID = id
		return nil
	})
	if err != nil {
		return 0, skips, err
	}
	return articleID, skips, nil
}
