// Package kafka publishes cluster reports to the sink topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/lma-phasor-service/internal/config"
	"github.com/couchcryptid/lma-phasor-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces cluster reports to a Kafka topic. It implements
// pipeline.ReportSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishReports serializes and publishes reports to the sink topic in a
// single WriteMessages call.
func (w *Writer) PublishReports(ctx context.Context, reports []pipeline.Report) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Report into a Kafka message keyed by the
// deterministic report id, so replays land on the same partition.
func serializeToMessage(report pipeline.Report) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cluster report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "epoch", Value: []byte(strconv.FormatInt(report.Epoch, 10))},
			{Key: "clusters", Value: []byte(strconv.Itoa(len(report.Clusters)))},
			{Key: "processed_at", Value: []byte(report.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
