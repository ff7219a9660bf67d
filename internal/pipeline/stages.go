package pipeline

import (
	"context"
	"errors"
	"fmt"

	"comebackwatch/internal/delta"
	"comebackwatch/internal/discovery"
	"comebackwatch/internal/enrichment"
	"comebackwatch/internal/extraction"
	"comebackwatch/internal/model"
	"comebackwatch/internal/store"
	"comebackwatch/internal/views"
)

func loadOptional[T any](ctx context.Context, s store.Store, name string, w *summaryWriter) (T, error) {
	value, warning, err := store.LoadOptional[T](ctx, s, name)
	if warning != "" {
		w.warn(warning)
	}
	return value, err
}

func loadRequired[T any](ctx context.Context, s store.Store, name, producer string) (T, error) {
	value, err := store.Load[T](ctx, s, name)
	if errors.Is(err, store.ErrNotFound) {
		return value, fmt.Errorf("%s does not exist, run the %s stage first", name, producer)
	}
	return value, err
}

func (p Pipeline) discover(ctx context.Context, w *summaryWriter) error {
	d := discovery.NewDiscoverer(p.fetcher, p.fetcher.NewPacer(), p.clock, p.tel, p.opts.Discovery)
	pages, err := d.Discover(ctx, p.opts.MaxPages)
	if err != nil {
		return err
	}

	w.summary.Discovered = len(pages.Pages)
	w.summary.SourceUsed = pages.SourceUsed
	w.summary.Blocked = w.summary.Blocked || pages.Blocked
	w.warn(pages.Warnings...)

	if len(pages.Pages) == 0 {
		w.warn("no index pages were discovered, keeping the previous page set")
		return nil
	}
	return store.Save(ctx, p.store, store.DocPages, pages)
}

func (p Pipeline) events(ctx context.Context, w *summaryWriter) error {
	pages, err := loadRequired[model.PageSet](ctx, p.store, store.DocPages, StageDiscover)
	if err != nil {
		return err
	}
	prevEvents, err := loadOptional[model.EventSet](ctx, p.store, store.DocEvents, w)
	if err != nil {
		return err
	}
	prevEntities, err := loadOptional[model.EntitySet](ctx, p.store, store.DocEntities, w)
	if err != nil {
		return err
	}

	stage := extraction.NewStage(p.fetcher, p.fetcher.NewPacer(), p.extractor, p.clock, p.tel)
	res, err := stage.Run(ctx, pages.Pages, extraction.Previous{
		Events:   prevEvents.Events,
		Entities: prevEntities.Entities,
	}, extraction.Options{MaxPages: p.opts.Months})
	if err != nil {
		return err
	}

	w.summary.Blocked = w.summary.Blocked || res.Blocked
	w.warn(res.Warnings...)

	if res.Blocked || len(res.Events.PagesUsed) == 0 {
		w.warn("extraction was incomplete, keeping the previous events and entities")
		w.summary.Extracted = len(prevEvents.Events)
		w.summary.Entities = len(prevEntities.Entities)
		return nil
	}

	w.summary.Extracted = len(res.Events.Events)
	w.summary.Entities = res.Present
	return store.SaveMany(ctx, p.store, map[string]any{
		store.DocEvents:   res.Events,
		store.DocEntities: res.Entities,
	})
}

func (p Pipeline) enrich(ctx context.Context, w *summaryWriter) error {
	entities, err := loadRequired[model.EntitySet](ctx, p.store, store.DocEntities, StageEvents)
	if err != nil {
		return err
	}
	freshness, err := loadOptional[model.Freshness](ctx, p.store, store.DocFreshness, w)
	if err != nil {
		return err
	}

	stage := enrichment.NewStage(p.fetcher, p.extractor, p.clock, p.tel)
	res, err := stage.Run(ctx, entities.Entities, freshness, p.opts.Enrichment)
	if err != nil {
		return err
	}

	w.summary.EnrichedOK = res.OK
	w.summary.EnrichedFailed = res.Failed
	w.summary.SkippedFresh = res.SkippedFresh
	w.summary.Blocked = w.summary.Blocked || res.Blocked
	w.warn(res.Warnings...)
	for _, f := range res.Failures {
		w.warn(fmt.Sprintf("enrich %s: %s: %s", f.EntityKey, f.Kind, f.Error))
	}

	// whatever was enriched before a challenge is kept
	return store.SaveMany(ctx, p.store, map[string]any{
		store.DocEntities: model.EntitySet{
			UpdatedAt: p.clock.Now(),
			Entities:  res.Entities,
		},
		store.DocFreshness: res.Freshness,
	})
}

func (p Pipeline) views(ctx context.Context, w *summaryWriter) error {
	events, err := loadRequired[model.EventSet](ctx, p.store, store.DocEvents, StageEvents)
	if err != nil {
		return err
	}
	entities, err := loadOptional[model.EntitySet](ctx, p.store, store.DocEntities, w)
	if err != nil {
		return err
	}

	v := views.Build(events.Events, entities.Entities, p.clock.Now(), p.opts.Views)
	w.summary.Upcoming = len(v.Upcoming)
	w.summary.Recent = len(v.Recent)
	w.summary.Undated = len(v.Undated)
	return store.Save(ctx, p.store, store.DocViews, v)
}

func (p Pipeline) delta(ctx context.Context, w *summaryWriter) error {
	res, err := delta.NewEngine(p.store, p.clock, p.tel).Commit(ctx)
	if err != nil {
		return err
	}
	counts := res.Delta.Counts()
	w.summary.Delta = &counts
	w.warn(res.Warnings...)

	if p.opts.Notifier == nil || res.Delta.Empty() {
		return nil
	}
	entities, err := loadOptional[model.EntitySet](ctx, p.store, store.DocEntities, w)
	if err != nil {
		return err
	}
	names := map[string]string{}
	for _, e := range entities.Entities {
		names[e.EntityKey] = e.DisplayName()
	}
	err = p.opts.Notifier.Send(ctx, res.Delta, names)
	if err != nil {
		p.tel.ReportWarning(report_pipeline_notify, err)
		w.warn(fmt.Sprintf("notify: %s", err.Error()))
	}
	return nil
}
