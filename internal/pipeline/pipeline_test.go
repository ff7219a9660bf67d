package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/discovery"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/model"
	"comebackwatch/internal/store"
	"comebackwatch/lib/testutil"

	"github.com/stretchr/testify/require"
)

const (
	seedPath     = "/category/kpop-comeback-schedule/"
	decemberPath = "/december-2025-kpop-comeback-schedule/"
	extraPath    = "/kpop-comeback-schedule-updates/"
	detailPath   = "/album/acme-new-single/"
)

const seedPage = `<html><body>
<a href="/december-2025-kpop-comeback-schedule/">December</a>
<a href="/kpop-comeback-schedule-updates/">Updates</a>
</body></html>`

const indexPage = `<html><head><title>December 2025 K-Pop Comeback Schedule</title></head><body>
<article>
  <div>December 12, 2025 7PM KST</div>
  <h3><a href="/album/acme-new-single/">ACME</a></h3>
  <p>New Single</p>
</article>
</body></html>`

const detailPage = `<html><body>
<h1>ACME - New Single</h1>
<h2>Album Details</h2>
<p>Artist: ACME</p>
<p>Album: New Single</p>
<p>Type: Single</p>
<p>Release Date: December 12, 2025</p>
<h2>Tracklist</h2>
<ol><li>New Single</li></ol>
</body></html>`

type recordingNotifier struct {
	mutex  sync.Mutex
	deltas []model.Delta
	names  []map[string]string
}

func (n *recordingNotifier) Send(ctx context.Context, d model.Delta, names map[string]string) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.deltas = append(n.deltas, d)
	n.names = append(n.names, names)
	return nil
}

type fixture struct {
	site     *testutil.Site
	store    *store.FileStore
	clock    chrono.FixedImpl
	notifier *recordingNotifier
	pipeline Pipeline
}

func newFixture(t *testing.T) fixture {
	site := testutil.NewSite(t)
	site.HTML(seedPath, seedPage)
	site.HTML(decemberPath, indexPage)
	site.HTML(extraPath, indexPage)
	site.HTML(detailPath, detailPage)

	tel := telemetry.NewRecorder()
	s, err := store.OpenFileStore(t.TempDir(), tel)
	require.NoError(t, err)

	policy := fetch.DefaultPolicy()
	policy.MaxRetries = 0
	policy.MaxRPS = 0
	fetcher := fetch.NewFetcher(policy, tel, fetch.Options{Sleep: testutil.NoSleep})

	opts := DefaultOptions()
	opts.Discovery.Seeds = []discovery.Seed{{URL: site.URL(seedPath), Paginate: true}}
	notifier := &recordingNotifier{}
	opts.Notifier = notifier

	clock := chrono.NewFixedImpl(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	return fixture{
		site:     site,
		store:    s,
		clock:    clock,
		notifier: notifier,
		pipeline: New(s, fetcher, extractor.NewCards(), clock, tel, opts),
	}
}

func TestRunTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StageRun, first.Stage)
	require.NotEmpty(t, first.RunID)
	require.False(t, first.Blocked)
	require.Equal(t, 2, first.Discovered)
	require.Equal(t, f.site.URL(seedPath), first.SourceUsed)
	require.Equal(t, 1, first.Extracted)
	require.Equal(t, 1, first.Entities)
	require.Equal(t, 1, first.EnrichedOK)
	require.Equal(t, 1, first.Upcoming)
	require.Equal(t, &model.DeltaCounts{EventsAdded: 1, EntitiesAdded: 1}, first.Delta)

	events, err := store.Load[model.EventSet](ctx, f.store, store.DocEvents)
	require.NoError(t, err)
	require.Len(t, events.Events, 1)
	ev := events.Events[0]
	require.Equal(t, "2025-12-12", ev.Date)
	require.Equal(t, "19:00", ev.Time)
	require.ElementsMatch(t, []string{f.site.URL(decemberPath), f.site.URL(extraPath)}, ev.Sources)

	entities, err := store.Load[model.EntitySet](ctx, f.store, store.DocEntities)
	require.NoError(t, err)
	require.Len(t, entities.Entities, 1)
	require.Equal(t, "ACME", entities.Entities[0].Attributes.Group)
	require.NotEmpty(t, entities.Entities[0].ContentHash)

	require.Len(t, f.notifier.deltas, 1)
	require.Equal(t, "New Single", f.notifier.names[0][f.site.URL(detailPath)])

	f.clock.Advance(time.Hour)
	second, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID)
	require.Equal(t, 1, second.SkippedFresh)
	require.Equal(t, 0, second.EnrichedOK)
	require.Equal(t, &model.DeltaCounts{}, second.Delta)
	require.Equal(t, 2, f.site.Hits(decemberPath))
	require.Equal(t, 1, f.site.Hits(detailPath))

	d, err := store.Load[model.Delta](ctx, f.store, store.DocDelta)
	require.NoError(t, err)
	require.Equal(t, []string{ev.EventKey}, d.Events.Common())
	require.Empty(t, d.Events.Added)
	require.Len(t, f.notifier.deltas, 1)

	persisted, err := store.Load[model.Summary](ctx, f.store, store.SummaryDoc(StageRun))
	require.NoError(t, err)
	require.Equal(t, second.RunID, persisted.RunID)
}

func TestStagesInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, run := range []func(context.Context) (model.Summary, error){
		f.pipeline.Discover,
		f.pipeline.Events,
		f.pipeline.Enrich,
		f.pipeline.Views,
		f.pipeline.Delta,
	} {
		_, err := run(ctx)
		require.NoError(t, err)
	}

	for _, stage := range []string{StageDiscover, StageEvents, StageEnrich, StageViews, StageDelta} {
		summary, err := store.Load[model.Summary](ctx, f.store, store.SummaryDoc(stage))
		require.NoError(t, err)
		require.Equal(t, stage, summary.Stage)
	}

	v, err := store.Load[model.Views](ctx, f.store, store.DocViews)
	require.NoError(t, err)
	require.Len(t, v.Upcoming, 1)
	require.Equal(t, "2025-12-12", v.Upcoming[0].Day)
}

func TestEventsRequiresPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	summary, err := f.pipeline.Events(ctx)
	require.Error(t, err)
	require.Len(t, summary.Warnings, 1)

	persisted, err := store.Load[model.Summary](ctx, f.store, store.SummaryDoc(StageEvents))
	require.NoError(t, err)
	require.Equal(t, summary.Warnings, persisted.Warnings)
}

func TestBlockedExtractionKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	before, err := store.Load[model.EventSnapshot](ctx, f.store, store.DocSnapshotEvents)
	require.NoError(t, err)

	challenge := testutil.Page{Status: 403, Body: `<title>Just a moment...</title>`}
	f.site.Set(decemberPath, challenge)
	f.site.Set(extraPath, challenge)

	f.clock.Advance(time.Hour)
	summary, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.True(t, summary.Blocked)
	require.Nil(t, summary.Delta)
	require.Equal(t, 1, summary.Extracted)
	require.Equal(t, 1, summary.Upcoming)

	events, err := store.Load[model.EventSet](ctx, f.store, store.DocEvents)
	require.NoError(t, err)
	require.Len(t, events.Events, 1)

	after, err := store.Load[model.EventSnapshot](ctx, f.store, store.DocSnapshotEvents)
	require.NoError(t, err)
	require.Equal(t, before.CommitID, after.CommitID)
	require.Equal(t, 1, f.site.Hits(detailPath))
}

func TestCancelledStageWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Discover(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = f.store.Get(context.Background(), store.SummaryDoc(StageDiscover))
	require.ErrorIs(t, err, store.ErrNotFound)
}
