package scheduler

import (
	"time"

	"newsroom/internal/store"
)

// Config controls the scheduler facade.
type Config struct {
	// TickSpec is the cron spec driving the promotion scan.
	// Accepts the same syntaxes as robfig/cron, default "@every 1m".
	TickSpec string

	// SweepSpec drives the low-frequency staging sweep, default "@daily".
	SweepSpec string

	// MinLead rejects publish times closer than this to now, preventing a
	// race against the next tick. Default 45s.
	MinLead time.Duration

	// MaxHorizon rejects publish times further out than this. Default one
	// year.
	MaxHorizon time.Duration

	// StagingRetention is how long an orphaned staging file survives
	// before the sweep removes it. Default 24h.
	StagingRetention time.Duration

	// Clock returns the current time; tests inject a fake.
	Clock func() time.Time
}

const (
	DefaultTickSpec  = "@every 1m"
	DefaultSweepSpec = "@daily"

	DefaultMinLead          = 45 * time.Second
	DefaultMaxHorizon       = 365 * 24 * time.Hour
	DefaultStagingRetention = 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.TickSpec == "" {
		c.TickSpec = DefaultTickSpec
	}
	if c.SweepSpec == "" {
		c.SweepSpec = DefaultSweepSpec
	}
	if c.MinLead <= 0 {
		c.MinLead = DefaultMinLead
	}
	if c.MaxHorizon <= 0 {
		c.MaxHorizon = DefaultMaxHorizon
	}
	if c.StagingRetention <= 0 {
		c.StagingRetention = DefaultStagingRetention
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// ItemView is the read-only listing projection of a pending article.
type ItemView struct {
	ID            int64
	Title         string
	ScheduledAt   time.Time
	Status        store.Status
	OwnerID       int64
	ErrorMessage  string
	LastAttemptAt time.Time
	Images        int
	HasVideo      bool
}

func toView(item store.PendingArticle) ItemView {
	return ItemView{
		ID:            item.ID,
		Title:         item.Title,
		ScheduledAt:   item.ScheduledAt,
		Status:        item.Status,
		OwnerID:       item.OwnerID,
		ErrorMessage:  item.ErrorMessage,
		LastAttemptAt: item.LastAttemptAt,
		Images:        len(item.Payload.MediaFiles),
		HasVideo:      item.Payload.VideoURL != "",
	}
}
