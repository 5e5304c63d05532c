package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsroom/internal/media"
	"newsroom/internal/store"
	logx "newsroom/pkg/logx"
)

type testEnv struct {
	engine *Engine
	store  *store.Store
	stager *media.Stager
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(store.Config{Path: filepath.Join(root, "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	stager, err := media.New(media.Config{
		StagingDir: filepath.Join(root, "staging"),
		MediaDir:   filepath.Join(root, "media"),
		BaseURL:    "/media",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("new stager: %v", err)
	}

	env := &testEnv{store: st, stager: stager, now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	env.engine = New(Config{Clock: func() time.Time { return env.now }}, st, stager, logx.Nop())
	return env
}

func (e *testEnv) seedCategory(t *testing.T, name string) int64 {
	t.Helper()
	id, err := e.store.InsertCategory(context.Background(), name)
	if err != nil {
		t.Fatalf("seed category %q: %v", name, err)
	}
	return id
}

func (e *testEnv) insert(t *testing.T, draft store.Draft, at time.Time, owner int64) store.PendingArticle {
	t.Helper()
	item, err := e.store.Insert(context.Background(), draft, at, owner)
	if err != nil {
		t.Fatalf("insert pending: %v", err)
	}
	return item
}

func TestTickPromotesDueItemsInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.seedCategory(t, "news")

	t1 := env.now.Add(-30 * time.Minute)
	t2 := env.now.Add(-20 * time.Minute)
	t3 := env.now.Add(-10 * time.Minute)
	// Inserted out of order; the tick must drain earliest-first.
	c := env.insert(t, store.Draft{Title: "third", Body: "c", CategoryIDs: []int64{cat}}, t3, 1)
	a := env.insert(t, store.Draft{Title: "first", Body: "a", CategoryIDs: []int64{cat}}, t1, 1)
	b := env.insert(t, store.Draft{Title: "second", Body: "b", CategoryIDs: []int64{cat}}, t2, 1)

	report, err := env.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []int64{a.ID, b.ID, c.ID}
	if len(report.Succeeded) != 3 {
		t.Fatalf("expected 3 promotions, got %+v", report)
	}
	for i, id := range want {
		if report.Succeeded[i] != id {
			t.Fatalf("promotion order wrong at %d: got %d want %d", i, report.Succeeded[i], id)
		}
	}

	pending, err := env.store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending store not drained: %d left", len(pending))
	}

	// The displayed publish time is the promised one.
	art, err := env.store.FindArticleByTitle(ctx, "first")
	if err != nil {
		t.Fatalf("FindArticleByTitle: %v", err)
	}
	if !art.PublishedAt.Equal(t1) {
		t.Fatalf("publish time is %v, want promised %v", art.PublishedAt, t1)
	}
}

func TestTickIsolatesPerItemFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.seedCategory(t, "news")
	due := env.now.Add(-time.Minute)

	ok1 := env.insert(t, store.Draft{Title: "ok1", Body: "x", CategoryIDs: []int64{cat}}, due.Add(-2*time.Minute), 1)
	bad := env.insert(t, store.Draft{Title: "bad", Body: "x", CategoryIDs: []int64{9999}}, due.Add(-time.Minute), 1)
	ok2 := env.insert(t, store.Draft{Title: "ok2", Body: "x", CategoryIDs: []int64{cat}}, due, 1)

	report, err := env.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Succeeded) != 2 || report.Succeeded[0] != ok1.ID || report.Succeeded[1] != ok2.ID {
		t.Fatalf("unexpected successes: %+v", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0].ID != bad.ID {
		t.Fatalf("unexpected failures: %+v", report.Failed)
	}

	remaining, err := env.store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected only the failed row to remain, got %d", len(remaining))
	}
	if remaining[0].ID != bad.ID || remaining[0].Status != store.StatusError {
		t.Fatalf("failed row in wrong state: %+v", remaining[0])
	}
	if remaining[0].ErrorMessage == "" {
		t.Fatalf("expected a recorded error message")
	}
	if !remaining[0].LastAttemptAt.Equal(env.now) {
		t.Fatalf("lastAttemptAt not set to tick time: %v", remaining[0].LastAttemptAt)
	}

	// The failed item's article must not exist.
	if _, err := env.store.FindArticleByTitle(ctx, "bad"); err == nil {
		t.Fatalf("rolled-back article is visible")
	}
}

func TestTickSkipsWhenCycleInFlight(t *testing.T) {
	env := newTestEnv(t)
	cat := env.seedCategory(t, "news")
	env.insert(t, store.Draft{Title: "due", Body: "x", CategoryIDs: []int64{cat}}, env.now.Add(-time.Minute), 1)

	env.engine.running.Store(true)
	report, err := env.engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !report.Overlapped {
		t.Fatalf("expected overlapped tick to be skipped")
	}
	if len(report.Succeeded) != 0 {
		t.Fatalf("skipped tick promoted items: %+v", report)
	}
	env.engine.running.Store(false)
}

func TestPromotionPublishesWithoutUnresolvableImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.seedCategory(t, "news")

	// One resolvable image, one lost one.
	inbox := t.TempDir()
	src := filepath.Join(inbox, "real.jpg")
	if err := os.WriteFile(src, []byte("real-bytes"), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	okRef, err := env.stager.StageForLater(media.Upload{Path: src, OriginalName: "real.jpg"})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	lostRef := media.Ref{
		Kind:         media.KindImage,
		Token:        "0000-lost",
		StagedPath:   filepath.Join(inbox, "lost.jpg"),
		OriginalName: "lost.jpg",
	}

	item := env.insert(t, store.Draft{
		Title:       "partial",
		Body:        "x",
		CategoryIDs: []int64{cat},
		MediaFiles:  []media.Ref{okRef, lostRef},
	}, env.now.Add(-time.Minute), 1)

	report, err := env.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0] != item.ID {
		t.Fatalf("expected promotion despite lost image: %+v", report)
	}
	if len(report.SkippedMedia) != 1 || report.SkippedMedia[0].OriginalName != "lost.jpg" {
		t.Fatalf("lost image not recorded: %+v", report.SkippedMedia)
	}

	art, err := env.store.FindArticleByTitle(ctx, "partial")
	if err != nil {
		t.Fatalf("FindArticleByTitle: %v", err)
	}
	recs, err := env.store.ArticleMedia(ctx, art.ID)
	if err != nil {
		t.Fatalf("ArticleMedia: %v", err)
	}
	if len(recs) != 1 || recs[0].Kind != media.KindImage {
		t.Fatalf("expected exactly the resolvable image attached: %+v", recs)
	}
}

func TestPromotionAttachesAllowedVideoOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.seedCategory(t, "news")

	env.insert(t, store.Draft{
		Title:       "with video",
		Body:        "x",
		CategoryIDs: []int64{cat},
		VideoURL:    "https://www.youtube.com/watch?v=abc",
	}, env.now.Add(-2*time.Minute), 1)
	env.insert(t, store.Draft{
		Title:       "bad video",
		Body:        "x",
		CategoryIDs: []int64{cat},
		VideoURL:    "https://evil.example.com/clip",
	}, env.now.Add(-time.Minute), 1)

	if _, err := env.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	withVideo, err := env.store.FindArticleByTitle(ctx, "with video")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	recs, _ := env.store.ArticleMedia(ctx, withVideo.ID)
	if len(recs) != 1 || recs[0].Kind != media.KindVideo {
		t.Fatalf("allowed video not attached: %+v", recs)
	}

	// A rejected video URL does not fail the article; it just isn't attached.
	badVideo, err := env.store.FindArticleByTitle(ctx, "bad video")
	if err != nil {
		t.Fatalf("article with rejected video should still publish: %v", err)
	}
	recs, _ = env.store.ArticleMedia(ctx, badVideo.ID)
	if len(recs) != 0 {
		t.Fatalf("rejected video attached: %+v", recs)
	}
}

func TestPromoteClaimedSettlesErrorRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// No categories seeded: promotion must fail and settle the row.
	item := env.insert(t, store.Draft{Title: "doomed", Body: "x", CategoryIDs: []int64{1}}, env.now.Add(-time.Minute), 1)

	claimed, err := env.store.MarkPublishing(ctx, item.ID)
	if err != nil || !claimed {
		t.Fatalf("claim: ok=%v err=%v", claimed, err)
	}
	if _, _, err := env.engine.PromoteClaimed(ctx, item); err == nil {
		t.Fatalf("expected promotion failure")
	}
	got, err := env.store.FindOwned(ctx, item.ID, 1)
	if err != nil {
		t.Fatalf("FindOwned: %v", err)
	}
	if got.Status != store.StatusError {
		t.Fatalf("row not settled to error: %+v", got)
	}
}
