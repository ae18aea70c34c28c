package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/couchcryptid/lma-phasor-service/internal/correlate"
)

// ClusterSummary flattens one accepted cluster for downstream consumers:
// the index range into the report's peak table plus the derived figures a
// solver or triage view wants first.
type ClusterSummary struct {
	Start int `json:"start"`
	End   int `json:"end"`
	// Sensors is the distinct-sensor count inside the cluster.
	Sensors int `json:"sensors"`
	// SourceTimeNs is the source time of the cluster's first peak,
	// nanoseconds into the second.
	SourceTimeNs int64 `json:"source_time_ns"`
	// SpanNs is the source-time spread across the cluster.
	SpanNs int64 `json:"span_ns"`
}

// Report is the output for one correlated sensor-second that produced at
// least one candidate cluster.
type Report struct {
	ID             string                 `json:"id"`
	Epoch          int64                  `json:"epoch"`
	SensorIDs      []string               `json:"sensor_ids"`
	WindowLengthNs int64                  `json:"window_length_ns"`
	MinSensors     int                    `json:"min_sensors"`
	Peaks          []correlate.MergedPeak `json:"peaks"`
	Clusters       []ClusterSummary       `json:"clusters"`
	Solutions      []correlate.Solution   `json:"solutions,omitempty"`
	ProcessedAt    time.Time              `json:"processed_at"`
}

// reportID produces a deterministic id from the second and its sensor set,
// so replaying the same batch yields the same report keys downstream.
func reportID(epoch int64, sensorIDs []string) string {
	input := fmt.Sprintf("%d|%v", epoch, sensorIDs)
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("second-%d-%s", epoch, hex.EncodeToString(hash[:8]))
}

func summarizeCluster(p *correlate.Phasor, c correlate.Cluster) ClusterSummary {
	peaks := p.Peaks()
	return ClusterSummary{
		Start:        c.Start,
		End:          c.End,
		Sensors:      p.DistinctSensors(c),
		SourceTimeNs: peaks[c.Start].SourceTime,
		SpanNs:       peaks[c.End-1].SourceTime - peaks[c.Start].SourceTime,
	}
}
