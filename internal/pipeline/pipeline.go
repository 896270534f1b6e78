package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cat-loss-etl/internal/config"
	"github.com/couchcryptid/cat-loss-etl/internal/domain"
	"github.com/couchcryptid/cat-loss-etl/internal/observability"
)

// Fatal conditions. A run hitting one of these aborts before publishing
// anything; there is no partial result set.
var (
	ErrNoDocuments  = errors.New("no forecast documents found for run")
	ErrNoHazardData = errors.New("no cells produced hazard records")
	ErrNoExposure   = errors.New("empty exposure reference table")
	ErrNoLossRows   = errors.New("no loss rows computed")
)

// Source provides a run's raw inputs from the object store.
type Source interface {
	LatestRawRun(ctx context.Context) (string, error)
	ListDocuments(ctx context.Context, run string) ([]string, error)
	GetDocument(ctx context.Context, key string) ([]byte, error)
	ReadTracts(ctx context.Context) ([]domain.ExposureUnit, error)
	ReadBook(ctx context.Context) (map[string]domain.Sample, error)
}

// Publisher writes one run's complete result set.
type Publisher interface {
	PublishResultSet(ctx context.Context, rs *domain.ResultSet) error
}

// Notifier announces a published run. Notification is best effort; a failure
// never unpublishes the run.
type Notifier interface {
	NotifyRunPublished(ctx context.Context, summary domain.RunSummary) error
}

// Pipeline executes one hazard-to-loss run: fetch, assemble, map, model,
// aggregate, publish.
type Pipeline struct {
	source    Source
	publisher Publisher
	notifier  Notifier // nil when notification is disabled

	cal              config.Calibration
	fetchConcurrency int

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline. Pass a nil notifier to disable run notifications.
func New(source Source, publisher Publisher, notifier Notifier, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:           source,
		publisher:        publisher,
		notifier:         notifier,
		cal:              cfg.Calibration,
		fetchConcurrency: cfg.FetchConcurrency,
		clock:            clock,
		logger:           logger,
		metrics:          metrics,
	}
}

// Run executes one batch run. An empty run id resolves to the latest raw run.
// The returned ResultSet is what was published.
func (p *Pipeline) Run(ctx context.Context, run string) (*domain.ResultSet, error) {
	start := p.clock.Now()

	if run == "" {
		latest, err := p.source.LatestRawRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve latest run: %w", err)
		}
		run = latest
	}
	logger := p.logger.With("run", run)
	logger.Info("run starting")

	keys, err := p.source.ListDocuments(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrNoDocuments, run)
	}

	cells, cellSeries, err := p.fetchHazardSeries(ctx, keys)
	if err != nil {
		return nil, err
	}
	p.metrics.CellsPopulated.Set(float64(len(cellSeries)))
	if len(cellSeries) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrNoHazardData, run)
	}
	logger.Info("hazard series assembled",
		"documents", len(keys), "cells", len(cells), "populated_cells", len(cellSeries))

	units, err := p.loadExposure(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("exposure loaded", "tracts", len(units))

	rows, byGeoID := p.computeLosses(logger, units, cells, cellSeries)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrNoLossRows, run)
	}
	p.metrics.LossRowsComputed.Add(float64(len(rows)))

	agg := domain.SumByTractTime(rows)
	rs := domain.BuildResultSet(run, agg, byGeoID, logger)

	if err := p.publisher.PublishResultSet(ctx, rs); err != nil {
		return nil, fmt.Errorf("publish result set: %w", err)
	}
	p.metrics.RunsPublished.Inc()
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	logger.Info("run published",
		"loss_rows", len(agg),
		"tracts", len(rs.Bands.Bands),
		"counties", len(rs.Counties.Counties),
	)

	p.notify(ctx, rs, len(agg))

	return rs, nil
}

// fetchHazardSeries retrieves and parses every listed document on a bounded
// worker pool. The listing is the manifest: any fetch or parse failure fails
// the run, since a partial cell set would produce silently wrong losses.
// It returns the full sorted cell grid (the nearest-neighbor search space)
// and the series map holding only cells with at least one record.
func (p *Pipeline) fetchHazardSeries(ctx context.Context, keys []string) ([]domain.Cell, map[domain.Cell][]domain.HazardRecord, error) {
	type cellDoc struct {
		cell    domain.Cell
		records []domain.HazardRecord
	}

	pool := pond.NewResultPool[cellDoc](p.fetchConcurrency)
	defer pool.StopAndWait()
	group := pool.NewGroup()

	for _, key := range keys {
		group.SubmitErr(func() (cellDoc, error) {
			cell, err := domain.CellFromKey(key)
			if err != nil {
				p.metrics.FetchErrors.Inc()
				return cellDoc{}, err
			}
			data, err := p.source.GetDocument(ctx, key)
			if err != nil {
				p.metrics.FetchErrors.Inc()
				return cellDoc{}, fmt.Errorf("fetch %s: %w", key, err)
			}
			records, err := domain.ParseForecastDocument(data)
			if err != nil {
				p.metrics.FetchErrors.Inc()
				return cellDoc{}, fmt.Errorf("parse %s: %w", key, err)
			}
			p.metrics.DocumentsFetched.Inc()
			return cellDoc{cell: cell, records: records}, nil
		})
	}

	docs, err := group.Wait()
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[domain.Cell]bool, len(docs))
	cells := make([]domain.Cell, 0, len(docs))
	series := make(map[domain.Cell][]domain.HazardRecord, len(docs))
	for _, d := range docs {
		if !seen[d.cell] {
			seen[d.cell] = true
			cells = append(cells, d.cell)
		}
		if len(d.records) == 0 {
			continue
		}
		series[d.cell] = append(series[d.cell], d.records...)
	}
	domain.SortCells(cells)

	return cells, series, nil
}

// loadExposure reads the tract reference table and joins the book's insured
// values on geoid. Tracts absent from the book carry a zero TIV.
func (p *Pipeline) loadExposure(ctx context.Context) ([]domain.ExposureUnit, error) {
	tracts, err := p.source.ReadTracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read exposure table: %w", err)
	}
	if len(tracts) == 0 {
		return nil, ErrNoExposure
	}

	book, err := p.source.ReadBook(ctx)
	if err != nil {
		return nil, fmt.Errorf("read book table: %w", err)
	}

	for i := range tracts {
		if tiv, ok := book[tracts[i].GeoID]; ok {
			tracts[i].TIVHome = tiv
		} else {
			tracts[i].TIVHome = domain.AbsentSample()
		}
	}

	// Ascending geoid order fixes the county first-seen rule and every
	// downstream tie break.
	sort.Slice(tracts, func(i, j int) bool { return tracts[i].GeoID < tracts[j].GeoID })

	return tracts, nil
}

// computeLosses maps each exposure unit to its nearest cell over the full
// grid and runs the loss model over that cell's series. Units whose cell has
// no hazard history are excluded from the run without failing it.
func (p *Pipeline) computeLosses(logger *slog.Logger, units []domain.ExposureUnit, cells []domain.Cell, cellSeries map[domain.Cell][]domain.HazardRecord) ([]domain.LossRow, map[string]domain.ExposureUnit) {
	model := domain.NewLossModel(p.cal, domain.MaxEAL(units))

	var rows []domain.LossRow
	byGeoID := make(map[string]domain.ExposureUnit, len(units))
	for _, u := range units {
		byGeoID[u.GeoID] = u

		cell, ok := domain.NearestCell(cells, u.CentroidLat, u.CentroidLon)
		if !ok {
			p.metrics.TractsExcluded.Inc()
			continue
		}
		series := cellSeries[cell]
		if len(series) == 0 {
			p.metrics.TractsExcluded.Inc()
			logger.Debug("tract excluded, nearest cell has no hazard history", "geoid", u.GeoID)
			continue
		}

		p.metrics.TractsMapped.Inc()
		for _, rec := range series {
			rows = append(rows, domain.LossRow{
				GeoID:        u.GeoID,
				Dt:           rec.Dt,
				ExpectedLoss: model.ExpectedLoss(rec, u),
			})
		}
	}
	return rows, byGeoID
}

func (p *Pipeline) notify(ctx context.Context, rs *domain.ResultSet, lossRows int) {
	if p.notifier == nil {
		return
	}

	var total float64
	for _, r := range rs.TractSeries {
		total += r.ExpectedLoss
	}

	summary := domain.RunSummary{
		Run:         rs.Run,
		Tracts:      len(rs.Bands.Bands),
		Counties:    len(rs.Counties.Counties),
		LossRows:    lossRows,
		TotalLoss:   total,
		PublishedAt: p.clock.Now().UTC(),
	}
	if err := p.notifier.NotifyRunPublished(ctx, summary); err != nil {
		p.metrics.NotifyErrors.Inc()
		p.logger.Warn("run notification failed", "run", rs.Run, "error", err)
	}
}
