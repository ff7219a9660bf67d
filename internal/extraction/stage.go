package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/model"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/extraction")

const (
	report_stage_fetch   = "stage.fetch"
	report_stage_parse   = "stage.parse"
	report_stage_blocked = "stage.blocked"
	report_stage_events  = "stage.events"
)

type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}

type Options struct {
	// MaxPages limits how many index pages are processed, 0 means all.
	MaxPages int
}

// Previous is the state written by the last extraction, used to keep
// provenance and entity lifecycle across runs.
type Previous struct {
	Events   []model.Event
	Entities []model.Entity
}

type Result struct {
	Events   model.EventSet
	Entities model.EntitySet
	// Present is the number of entities observed by this run.
	Present  int
	Blocked  bool
	Warnings []string
}

// Stage fetches every index page through one shared pacer and turns the
// records on them into events and entity stubs.
type Stage struct {
	fetcher    Fetcher
	pacer      *fetch.Pacer
	extractor  extractor.Extractor
	normalizer Normalizer
	clock      chrono.API
	tel        telemetry.API
}

func NewStage(fetcher Fetcher, pacer *fetch.Pacer, ext extractor.Extractor, clock chrono.API, tel telemetry.API) Stage {
	assert.NotNil(fetcher)
	assert.NotNil(ext)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return Stage{
		fetcher:    fetcher,
		pacer:      pacer,
		extractor:  ext,
		normalizer: NewNormalizer(clock),
		clock:      clock,
		tel:        telemetry.NewScopedAPI("extraction", tel),
	}
}

func (s Stage) Run(ctx context.Context, pages []string, prev Previous, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	if opts.MaxPages > 0 && len(pages) > opts.MaxPages {
		pages = pages[:opts.MaxPages]
	}
	span.SetAttributes(attribute.Int("pages", len(pages)))

	now := s.clock.Now()
	res := Result{}

	prevSources := map[string][]string{}
	for _, e := range prev.Events {
		prevSources[e.EventKey] = e.Sources
	}

	byKey := map[string]*model.Event{}
	seeds := map[string]model.Seed{}
	var pagesUsed []string

	for _, page := range pages {
		err := s.pacer.Wait(ctx)
		if err != nil {
			return Result{}, err
		}

		body, err := s.fetcher.Fetch(ctx, page)
		if errors.Is(err, fetch.ErrChallenge) {
			s.tel.ReportWarning(report_stage_blocked, page)
			res.Blocked = true
			res.Warnings = append(res.Warnings, fmt.Sprintf("anti-bot challenge on %s, extraction stopped", page))
			span.SetStatus(codes.Error, "blocked")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			s.tel.ReportWarning(report_stage_fetch, page, err)
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			s.tel.ReportWarning(report_stage_parse, page, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("parse %s: %s", page, err.Error()))
			continue
		}
		pageURL, err := url.Parse(page)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("parse url %s: %s", page, err.Error()))
			continue
		}
		doc.Url = pageURL
		pagesUsed = append(pagesUsed, page)

		hint := YearHint(doc)
		for _, record := range s.extractor.LocateRecords(doc, pageURL) {
			for _, ev := range s.normalizer.Normalize(record, hint, page) {
				existing, ok := byKey[ev.EventKey]
				if !ok {
					merged := ev
					merged.Sources = append([]string{}, prevSources[ev.EventKey]...)
					byKey[ev.EventKey] = &merged
					existing = &merged
				}
				existing.AddSource(page)
			}
			if _, ok := seeds[record.DetailURL]; !ok {
				seeds[record.DetailURL] = model.Seed{
					FirstSeenPage: page,
					AuxLines:      record.AuxLines,
				}
			}
		}
	}

	events := make([]model.Event, 0, len(byKey))
	for _, e := range byKey {
		events = append(events, *e)
	}
	model.SortEvents(events)

	res.Events = model.EventSet{
		GeneratedAt: now,
		PagesUsed:   pagesUsed,
		Events:      events,
	}
	res.Entities, res.Present = mergeEntities(prev.Entities, seeds, now)
	if pagesUsed == nil && len(pages) > 0 {
		res.Warnings = append(res.Warnings, "no index page could be fetched")
	}

	s.tel.ReportCount(report_stage_events, int64(len(events)))
	return res, nil
}

// mergeEntities seeds stubs for new keys, refreshes the seed and lifecycle
// of observed ones and marks the others absent. Enriched attributes are
// never touched.
func mergeEntities(previous []model.Entity, seeds map[string]model.Seed, now time.Time) (model.EntitySet, int) {
	byKey := map[string]model.Entity{}
	for _, e := range previous {
		e.Absent = true
		byKey[e.EntityKey] = e
	}

	for key, seed := range seeds {
		seenAt := now
		entity, ok := byKey[key]
		if !ok {
			entity = model.Entity{EntityKey: key, Seed: seed}
		} else {
			if entity.Seed.FirstSeenPage != "" {
				seed.FirstSeenPage = entity.Seed.FirstSeenPage
			}
			entity.Seed = seed
		}
		entity.Absent = false
		entity.LastSeenAt = &seenAt
		byKey[key] = entity
	}

	entities := make([]model.Entity, 0, len(byKey))
	for _, e := range byKey {
		entities = append(entities, e)
	}
	model.SortEntities(entities)

	return model.EntitySet{UpdatedAt: now, Entities: entities}, len(seeds)
}
