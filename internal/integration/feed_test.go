//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/kafka"
	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/harvest"
	"github.com/Hkarnen/comp90024-assignment-2/internal/observability"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

const testFeedTopic = "test-observations"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	kc, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("telemetry-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(kc); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := kc.Brokers(ctx)
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

	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func readMessages(ctx context.Context, t *testing.T, broker string, n int) []kafkago.Message {
	t.Helper()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testFeedTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msgs := make([]kafkago.Message, 0, n)
	for len(msgs) < n {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err, "read from feed topic")
		msgs = append(msgs, msg)
	}
	return msgs
}

func headers(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// TestFeedWriter_Publish round-trips two documents through a real broker.
func TestFeedWriter_Publish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFeedTopic)

	w := kafka.NewWriter(kafka.WriterConfig{Brokers: []string{broker}, Topic: testFeedTopic}, discardLogger())
	t.Cleanup(func() { _ = w.Close() })

	congestion := 1.7
	docs := []domain.Document{
		domain.TrafficSegment{ObsID: "12---2024-05-10T14:30:00", FreewayName: "Monash Fwy", PublishedTime: "2024-05-10T14:30:00", CongestionIndex: &congestion},
		domain.TrafficSegment{ObsID: "13---2024-05-10T14:30:00", FreewayName: "Monash Fwy", PublishedTime: "2024-05-10T14:30:00"},
	}
	require.NoError(t, w.Publish(ctx, domain.SourceTraffic, docs))

	msgs := readMessages(ctx, t, broker, 2)
	assert.Equal(t, "12---2024-05-10T14:30:00", string(msgs[0].Key))
	assert.Equal(t, "13---2024-05-10T14:30:00", string(msgs[1].Key))
	assert.Equal(t, "traffic", headers(msgs[0])["source"])
	assert.NotEmpty(t, headers(msgs[0])["harvested_at"])

	var seg domain.TrafficSegment
	require.NoError(t, json.Unmarshal(msgs[0].Value, &seg))
	assert.Equal(t, "Monash Fwy", seg.FreewayName)
	require.NotNil(t, seg.CongestionIndex)
	assert.Equal(t, 1.7, *seg.CongestionIndex)
}

type stubTrafficClient struct {
	features []domain.TrafficFeature
}

func (s stubTrafficClient) Features(context.Context) ([]domain.TrafficFeature, error) {
	return s.features, nil
}

// TestHarvest_PublishesOnlyNewDocuments runs two traffic passes over the same
// feed and checks that the second pass publishes nothing.
func TestHarvest_PublishesOnlyNewDocuments(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFeedTopic)

	w := kafka.NewWriter(kafka.WriterConfig{Brokers: []string{broker}, Topic: testFeedTopic}, discardLogger())
	t.Cleanup(func() { _ = w.Close() })

	feed := stubTrafficClient{features: []domain.TrafficFeature{
		{Properties: domain.TrafficProperties{ID: "1", FreewayName: "Eastern Fwy", PublishedTime: "2024-05-10T14:30:00"}},
		{Properties: domain.TrafficProperties{ID: "2", FreewayName: "Eastern Fwy", PublishedTime: "2024-05-10T14:30:00"}},
	}}

	h := harvest.New(harvest.Options{
		Store:     store.NewMemory(),
		Traffic:   feed,
		Publisher: w,
		Indices:   harvest.Indices{Traffic: "traffic-data"},
		Workers:   2,
		Metrics:   observability.NewMetricsForTesting(),
	}, discardLogger())

	first, err := h.RunTraffic(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Written)

	second, err := h.RunTraffic(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 2, second.AlreadyPresent)

	msgs := readMessages(ctx, t, broker, 2)
	keys := []string{string(msgs[0].Key), string(msgs[1].Key)}
	assert.ElementsMatch(t, []string{"1---2024-05-10T14:30:00", "2---2024-05-10T14:30:00"}, keys)
}
