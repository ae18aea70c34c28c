// Package correlate merges per-sensor peak streams onto a common timeline
// and scans it for coincident clusters, the initial guesses handed to a
// position solver.
package correlate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/couchcryptid/lma-phasor-service/internal/geo"
	"github.com/couchcryptid/lma-phasor-service/internal/lma"
	"github.com/couchcryptid/lma-phasor-service/internal/roster"
)

// MergedPeak is one sensor arrival placed on the common timeline.
// SourceTime is the raw arrival time minus the sensor's modeled propagation
// delay from the phase center and minus its fixed cable delay.
type MergedPeak struct {
	SourceTime  int64 `json:"source_time"`
	Sensor      int   `json:"sensor"`
	ArrivalTime int64 `json:"arrival_time"`
	Power       int   `json:"power"`
}

// Cluster is a candidate event: a contiguous [Start, End) index range into
// the merged, source-time-sorted peak sequence.
type Cluster struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Config tunes a Phasor.
type Config struct {
	// Center is the phase center all propagation delays are measured from,
	// usually the network center.
	Center geo.Cartesian

	// Model computes per-sensor propagation delay. Defaults to
	// EuclideanPropagation.
	Model PropagationModel

	// WindowLengthNs sets how tightly source times must agree to coincide.
	// Should match the decimation window of the observation: commonly
	// 10000, 80000, or 400000 ns. Defaults to 80000.
	WindowLengthNs int64

	// MinSensors gates cluster acceptance. Both the window size and the
	// distinct-sensor count must strictly exceed it, so the effective
	// minimum number of agreeing sensors is MinSensors+1. Kept
	// strict-greater to match established network behavior.
	// Defaults to 5.
	MinSensors int

	// PositionToleranceM bounds how far a capture-embedded sensor position
	// may sit from its roster entry before a warning is logged. Defaults to
	// 10 meters.
	PositionToleranceM float64
}

func (c Config) withDefaults() Config {
	if c.Model == nil {
		c.Model = EuclideanPropagation
	}
	if c.WindowLengthNs == 0 {
		c.WindowLengthNs = 80000
	}
	if c.MinSensors == 0 {
		c.MinSensors = 5
	}
	if c.PositionToleranceM == 0 {
		c.PositionToleranceM = 10
	}
	return c
}

// Phasor correlates one frame per sensor against a common phase center.
type Phasor struct {
	frames map[string]*lma.Frame
	loc    *roster.Roster
	cfg    Config
	logger *slog.Logger

	sensorIDs []string
	peaks     []MergedPeak
	clusters  []Cluster
}

// New creates a Phasor over one frame per sensor. A nil roster is tolerated;
// sensor locations are then taken entirely from the capture-embedded
// positions.
func New(frames map[string]*lma.Frame, loc *roster.Roster, cfg Config, logger *slog.Logger) *Phasor {
	if loc == nil {
		loc = roster.New()
	}
	return &Phasor{
		frames: frames,
		loc:    loc,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Run reconciles sensor locations, merges all arrivals onto the common
// timeline, and scans for coincident clusters. The returned clusters index
// into Peaks.
func (p *Phasor) Run() ([]Cluster, error) {
	if err := p.reconcileLocations(); err != nil {
		return nil, err
	}
	if err := p.mergePeaks(); err != nil {
		return nil, err
	}
	p.findClusters()
	return p.clusters, nil
}

// SensorIDs returns the correlated sensor ids; MergedPeak.Sensor indexes
// into this list.
func (p *Phasor) SensorIDs() []string {
	return p.sensorIDs
}

// Peaks returns the merged, source-time-sorted peak sequence.
func (p *Phasor) Peaks() []MergedPeak {
	return p.peaks
}

// Clusters returns the accepted candidate clusters in scan order.
func (p *Phasor) Clusters() []Cluster {
	return p.clusters
}

// DistinctSensors counts the distinct sensor indices inside a cluster.
func (p *Phasor) DistinctSensors(c Cluster) int {
	seen := make(map[int]struct{}, c.End-c.Start)
	for _, peak := range p.peaks[c.Start:c.End] {
		seen[peak.Sensor] = struct{}{}
	}
	return len(seen)
}

// reconcileLocations checks every frame-embedded sensor position against the
// roster. Disagreement beyond the tolerance is logged, not fatal; sensors
// missing from the roster get a zero-delay entry synthesized from the
// capture. A sensor absent from both is unlocatable and fails correlation.
func (p *Phasor) reconcileLocations() error {
	p.sensorIDs = make([]string, 0, len(p.frames))
	for id := range p.frames {
		p.sensorIDs = append(p.sensorIDs, id)
	}
	// Sensor index assignment must not depend on map iteration order.
	sort.Strings(p.sensorIDs)

	for _, id := range p.sensorIDs {
		frame := p.frames[id]
		station, ok := p.loc.Lookup(id)
		if ok {
			if frame.Geodetic != nil {
				d := geo.GeodesicDistance(station.Geodetic, *frame.Geodetic)
				if d > p.cfg.PositionToleranceM {
					p.logger.Warn("sensor position disagrees between roster and capture",
						"sensor", id, "distance_m", d)
				}
			}
			continue
		}
		if frame.Geodetic == nil || frame.Cartesian == nil {
			return fmt.Errorf("sensor %q has no roster entry and the capture carries no position", id)
		}
		p.loc.Register(&roster.Station{
			ID:        id,
			Geodetic:  *frame.Geodetic,
			Cartesian: *frame.Cartesian,
		})
	}
	return nil
}

// mergePeaks subtracts each sensor's propagation and cable delays from its
// raw arrival times and folds all sensors into one sequence, stably sorted
// by source time. The cable delay comes from the roster; captures cannot
// carry it, which is why a roster is still wanted even for v10+ files.
func (p *Phasor) mergePeaks() error {
	total := 0
	for _, frame := range p.frames {
		total += frame.Len()
	}
	p.peaks = make([]MergedPeak, 0, total)

	for i, id := range p.sensorIDs {
		station, ok := p.loc.Lookup(id)
		if !ok {
			return fmt.Errorf("sensor %q missing from roster after reconciliation", id)
		}
		delay := int64(p.cfg.Model(p.cfg.Center, station.Cartesian) + station.DelayNs)
		p.logger.Debug("sensor delay", "sensor", id, "delay_ns", delay,
			"cable_ns", station.DelayNs)

		for _, rec := range p.frames[id].Records() {
			p.peaks = append(p.peaks, MergedPeak{
				SourceTime:  rec.Nano - delay,
				Sensor:      i,
				ArrivalTime: rec.Nano,
				Power:       int(rec.Power),
			})
		}
	}

	sort.SliceStable(p.peaks, func(a, b int) bool {
		return p.peaks[a].SourceTime < p.peaks[b].SourceTime
	})
	return nil
}

// findClusters walks the sorted sequence with a start index, growing a
// window while consecutive source times agree within the tolerance. A window
// is accepted only when its size and its distinct-sensor count both strictly
// exceed MinSensors and it extends past the previously accepted cluster, so
// the same event is never reported twice from a later start index.
func (p *Phasor) findClusters() {
	p.clusters = nil
	watermark := 0

	for i := 0; i < len(p.peaks)-p.cfg.MinSensors; i++ {
		n := 1
		for i+n < len(p.peaks) && p.peaks[i+n].SourceTime-p.peaks[i].SourceTime < p.cfg.WindowLengthNs {
			n++
		}
		if n <= p.cfg.MinSensors || i+n <= watermark {
			continue
		}
		c := Cluster{Start: i, End: i + n}
		if p.DistinctSensors(c) <= p.cfg.MinSensors {
			continue
		}
		p.clusters = append(p.clusters, c)
		watermark = i + n
	}
}
