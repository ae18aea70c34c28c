// Package pipeline orchestrates one batch job: scan the capture files in
// parallel, then walk the covered sensor-seconds sequentially, correlating
// one frame per sensor and publishing the seconds that produced candidate
// clusters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lma-phasor-service/internal/correlate"
	"github.com/couchcryptid/lma-phasor-service/internal/geo"
	"github.com/couchcryptid/lma-phasor-service/internal/lma"
	"github.com/couchcryptid/lma-phasor-service/internal/observability"
	"github.com/couchcryptid/lma-phasor-service/internal/roster"
)

// ReportSink writes cluster reports to the destination.
type ReportSink interface {
	PublishReports(ctx context.Context, reports []Report) error
}

// Options tunes a batch run.
type Options struct {
	// Decimated marks the captures as real-time decimated data.
	Decimated bool
	// WindowLengthNs and MinSensors are passed through to the coincidence
	// scan; zero values take the correlate defaults.
	WindowLengthNs int64
	MinSensors     int
	// WorkerCount bounds concurrent capture scans. Zero means one worker.
	WorkerCount int
	// Solver, when present, is run over every accepted cluster and its
	// solutions attached to the report. Solve failures are logged, not fatal.
	Solver correlate.Solver
}

// Pipeline runs decode-correlate-publish batches.
type Pipeline struct {
	loc     *roster.Roster
	sink    ReportSink
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Pipeline. A nil roster is tolerated; sensor positions are
// then taken from the captures alone.
func New(loc *roster.Roster, sink ReportSink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if loc == nil {
		loc = roster.New()
	}
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	// Keep these aligned with the correlate defaults; the pipeline's own
	// frame-count gate reads MinSensors too.
	if opts.WindowLengthNs == 0 {
		opts.WindowLengthNs = 80000
	}
	if opts.MinSensors == 0 {
		opts.MinSensors = 5
	}
	return &Pipeline{
		loc:     loc,
		sink:    sink,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once at least one sensor-second has been
// correlated, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no sensor-second correlated yet")
	}
	return nil
}

// sensorFile is one opened capture and the handle that backs it.
type sensorFile struct {
	path string
	file *os.File
	raw  *lma.RawFile
}

// Run processes one batch of capture files, one file per sensor covering the
// same time span. It returns after the whole span has been correlated, or
// earlier on context cancellation or a decode failure.
func (p *Pipeline) Run(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("no capture files given")
	}

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	files, err := p.scanAll(ctx, paths)
	defer closeAll(files)
	if err != nil {
		return err
	}

	bySensor, err := indexBySensor(files)
	if err != nil {
		return err
	}

	return p.correlateSpan(ctx, bySensor)
}

// scanAll opens and scans every capture with a bounded worker pool. Each
// worker owns its own file handle and almanac state; only the shared results
// slice is guarded. The first failure wins and cancels nothing mid-scan;
// scans are short and the pool drains naturally.
func (p *Pipeline) scanAll(ctx context.Context, paths []string) ([]*sensorFile, error) {
	jobs := make(chan string)
	var (
		mu       sync.Mutex
		files    []*sensorFile
		firstErr error
	)

	var wg sync.WaitGroup
	for w := 0; w < p.opts.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				sf, err := p.scanOne(path)
				mu.Lock()
				if err != nil {
					p.metrics.DecodeFailures.Inc()
					if firstErr == nil {
						firstErr = err
					}
				} else {
					files = append(files, sf)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, path := range paths {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- path:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return files, firstErr
	}
	if err := ctx.Err(); err != nil {
		return files, err
	}
	return files, nil
}

func (p *Pipeline) scanOne(path string) (*sensorFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	start := time.Now()
	raw, err := lma.OpenRawFile(f, p.opts.Decimated, p.logger.With("capture", path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	stats := raw.Stats()
	p.metrics.FilesDecoded.Inc()
	p.metrics.FileScanDuration.Observe(time.Since(start).Seconds())
	p.metrics.ScanCandidatesRejected.Add(float64(stats.CandidatesRejected))
	p.metrics.StructuralAnomalies.Add(float64(stats.StructuralAnomalies))

	p.logger.Info("capture scanned",
		"capture", path,
		"sensor", string(raw.ID),
		"version", raw.Version,
		"frames", raw.FrameCount(),
		"start_epoch", raw.StartEpoch,
		"end_epoch", raw.EndEpoch,
	)
	return &sensorFile{path: path, file: f, raw: raw}, nil
}

// indexBySensor keys the scanned captures by sensor id. One batch carries at
// most one capture per sensor.
func indexBySensor(files []*sensorFile) (map[string]*sensorFile, error) {
	bySensor := make(map[string]*sensorFile, len(files))
	for _, sf := range files {
		id := string(sf.raw.ID)
		if dup, ok := bySensor[id]; ok {
			return nil, fmt.Errorf("sensor %q appears in both %s and %s", id, dup.path, sf.path)
		}
		bySensor[id] = sf
	}
	return bySensor, nil
}

// correlateSpan walks every epoch covered by any capture, reads the frames
// present for that second, and runs the coincidence scan. The walk is
// inherently sequential: cluster acceptance depends on the scan watermark,
// and each capture's read cursor is single-threaded.
func (p *Pipeline) correlateSpan(ctx context.Context, bySensor map[string]*sensorFile) error {
	startEpoch, endEpoch := span(bySensor)
	center, err := p.phaseCenter(bySensor)
	if err != nil {
		return err
	}

	for epoch := startEpoch; epoch <= endEpoch; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frames, err := p.framesAt(bySensor, epoch)
		if err != nil {
			return err
		}
		// Acceptance needs strictly more than MinSensors distinct sensors;
		// fewer frames cannot produce a cluster.
		if len(frames) <= p.opts.MinSensors {
			continue
		}

		report, err := p.correlateSecond(ctx, epoch, frames, center)
		if err != nil {
			return err
		}
		p.ready.Store(true)
		if report == nil {
			continue
		}

		if err := p.sink.PublishReports(ctx, []Report{*report}); err != nil {
			return fmt.Errorf("publish report for epoch %d: %w", epoch, err)
		}
		p.metrics.ReportsPublished.Inc()
	}
	return nil
}

// framesAt reads one frame per sensor for the given epoch, skipping sensors
// with no frame that second.
func (p *Pipeline) framesAt(bySensor map[string]*sensorFile, epoch int64) (map[string]*lma.Frame, error) {
	frames := make(map[string]*lma.Frame)
	for id, sf := range bySensor {
		idx, ok := sf.raw.FrameIndexForEpoch(epoch)
		if !ok {
			continue
		}
		frame, err := sf.raw.ReadFrame(idx)
		if err != nil {
			p.metrics.DecodeFailures.Inc()
			return nil, fmt.Errorf("read frame %d of %s: %w", idx, sf.path, err)
		}
		p.metrics.FramesDecoded.Inc()
		p.metrics.RecordsDecoded.Add(float64(frame.Len()))
		frames[id] = frame
	}
	return frames, nil
}

// correlateSecond runs the phasor over one second's frames and builds a
// report when clusters were found.
func (p *Pipeline) correlateSecond(ctx context.Context, epoch int64, frames map[string]*lma.Frame, center geo.Cartesian) (*Report, error) {
	start := time.Now()
	phasor := correlate.New(frames, p.loc, correlate.Config{
		Center:         center,
		WindowLengthNs: p.opts.WindowLengthNs,
		MinSensors:     p.opts.MinSensors,
	}, p.logger)

	clusters, err := phasor.Run()
	if err != nil {
		return nil, fmt.Errorf("correlate epoch %d: %w", epoch, err)
	}

	p.metrics.SecondsCorrelated.Inc()
	p.metrics.MergedPeaks.Observe(float64(len(phasor.Peaks())))
	p.metrics.CorrelationDuration.Observe(time.Since(start).Seconds())

	if len(clusters) == 0 {
		return nil, nil
	}
	p.metrics.ClustersFound.Add(float64(len(clusters)))

	report := &Report{
		ID:             reportID(epoch, phasor.SensorIDs()),
		Epoch:          epoch,
		SensorIDs:      phasor.SensorIDs(),
		WindowLengthNs: p.opts.WindowLengthNs,
		MinSensors:     p.opts.MinSensors,
		Peaks:          phasor.Peaks(),
		ProcessedAt:    clock.Now(),
	}
	for _, c := range clusters {
		report.Clusters = append(report.Clusters, summarizeCluster(phasor, c))
	}
	p.attachSolutions(ctx, report, phasor, clusters)

	p.logger.Info("clusters found",
		"epoch", epoch,
		"clusters", len(clusters),
		"peaks", len(phasor.Peaks()),
		"sensors", len(frames),
	)
	return report, nil
}

// attachSolutions runs the injected solver, when present, over each cluster.
func (p *Pipeline) attachSolutions(ctx context.Context, report *Report, phasor *correlate.Phasor, clusters []correlate.Cluster) {
	if p.opts.Solver == nil {
		return
	}
	for _, c := range clusters {
		sol, err := p.opts.Solver.Solve(ctx, phasor.Peaks(), c, p.loc)
		if err != nil {
			p.logger.Warn("solver failed for cluster", "epoch", report.Epoch, "start", c.Start, "error", err)
			continue
		}
		report.Solutions = append(report.Solutions, sol)
	}
}

// phaseCenter picks the point propagation delays are measured from: the
// roster's network center when declared, otherwise the first sensor position
// any capture latched.
func (p *Pipeline) phaseCenter(bySensor map[string]*sensorFile) (geo.Cartesian, error) {
	if p.loc.Network != nil {
		return p.loc.Network.Cartesian, nil
	}
	ids := make([]string, 0, len(bySensor))
	for id := range bySensor {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sf := bySensor[id]
		if g, ok := sf.raw.Position(); ok {
			p.logger.Warn("roster declares no network center; using a sensor position as phase center",
				"sensor", string(sf.raw.ID), "lat", g.Lat, "lon", g.Lon)
			return geo.ToCartesian(g), nil
		}
	}
	return geo.Cartesian{}, errors.New("no phase center: roster has no network block and no capture carries a position")
}

func span(bySensor map[string]*sensorFile) (start, end int64) {
	first := true
	for _, sf := range bySensor {
		if first || sf.raw.StartEpoch < start {
			start = sf.raw.StartEpoch
		}
		if first || sf.raw.EndEpoch > end {
			end = sf.raw.EndEpoch
		}
		first = false
	}
	return start, end
}

func closeAll(files []*sensorFile) {
	for _, sf := range files {
		sf.file.Close()
	}
}
