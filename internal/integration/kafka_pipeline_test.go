//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/lma-phasor-service/internal/adapter/kafka"
	"github.com/couchcryptid/lma-phasor-service/internal/config"
	"github.com/couchcryptid/lma-phasor-service/internal/geo"
	"github.com/couchcryptid/lma-phasor-service/internal/lma"
	"github.com/couchcryptid/lma-phasor-service/internal/observability"
	"github.com/couchcryptid/lma-phasor-service/internal/pipeline"
	"github.com/couchcryptid/lma-phasor-service/internal/roster"
)

const (
	testSinkTopic = "test-lma-cluster-reports"
	testEpoch     = int64(1714111200)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-broker Kafka container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeCapture writes a one-second capture for one sensor, with a single
// trigger landing in the same window for every sensor.
func writeCapture(t *testing.T, dir string, sensor byte) string {
	t.Helper()

	var buf bytes.Buffer
	status := func(epoch int64, triggers int) {
		ts := time.Unix(epoch, 0).UTC()
		b, err := lma.EncodeStatus(&lma.StatusRecord{
			Version: 12, ID: sensor, NetID: 'N',
			Year: ts.Year(), Month: int(ts.Month()), Day: ts.Day(),
			Hour: ts.Hour(), Minute: ts.Minute(), Second: ts.Second(),
			TriggerCount: triggers,
		})
		require.NoError(t, err)
		buf.Write(b)
	}

	status(testEpoch-1, 0)
	buf.Write(lma.EncodeData(lma.DataFields{Window: 6, Ticks: 10, Amplitude: 150, AboveThresh: 20}))
	status(testEpoch, 1)

	path := filepath.Join(dir, string(sensor)+".dat")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func testRoster() *roster.Roster {
	site := geo.Geodetic{Lat: 33.98, Lon: -107.19, Alt: 3195}
	cart := geo.ToCartesian(site)

	loc := roster.New()
	loc.Network = &roster.Station{Name: "Test LMA", Geodetic: site, Cartesian: cart}
	for _, id := range []string{"A", "B", "C"} {
		loc.Register(&roster.Station{ID: id, Geodetic: site, Cartesian: cart})
	}
	return loc
}

// TestPipelinePublishesToKafka runs the full batch pipeline against a real
// broker and reads the cluster report back from the sink topic.
func TestPipelinePublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}
	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	dir := t.TempDir()
	paths := []string{
		writeCapture(t, dir, 'A'),
		writeCapture(t, dir, 'B'),
		writeCapture(t, dir, 'C'),
	}

	p := pipeline.New(testRoster(), writer, pipeline.Options{MinSensors: 2},
		discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, p.Run(ctx, paths))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{broker},
		Topic:    testSinkTopic,
		GroupID:  "integration-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	var report pipeline.Report
	require.NoError(t, json.Unmarshal(msg.Value, &report))
	assert.Equal(t, string(msg.Key), report.ID)
	assert.Equal(t, testEpoch, report.Epoch)
	assert.Equal(t, []string{"A", "B", "C"}, report.SensorIDs)
	require.Len(t, report.Clusters, 1)
	assert.Equal(t, 3, report.Clusters[0].Sensors)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, strconv.FormatInt(testEpoch, 10), headers["epoch"])
	assert.Equal(t, "1", headers["clusters"])
}
