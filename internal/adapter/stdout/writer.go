// Package stdout writes cluster reports as JSON lines, one report per line.
// It is the default sink when Kafka publishing is disabled.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/couchcryptid/lma-phasor-service/internal/pipeline"
)

// Writer emits reports to an io.Writer as newline-delimited JSON. It
// implements pipeline.ReportSink.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter wraps out, typically os.Stdout.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// PublishReports writes each report on its own line.
func (w *Writer) PublishReports(_ context.Context, reports []pipeline.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	enc := json.NewEncoder(w.out)
	for i := range reports {
		if err := enc.Encode(reports[i]); err != nil {
			return fmt.Errorf("write cluster report: %w", err)
		}
	}
	return nil
}
