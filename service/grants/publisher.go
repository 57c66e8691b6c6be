package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/fishnet-hq/paygate/service/metrics"
)

const (
	// StreamName is the name of the JetStream stream for permission records.
	StreamName = "PERMISSIONS"

	// StreamSubjects is the subject pattern for the stream. Subjects are
	// "permissions.{channel}.{datasetID}" so downstream consumers can filter
	// by deployment channel.
	StreamSubjects = "permissions.>"

	// StreamRetention is how long permission records are retained. Grants
	// are replicated downstream into the access index, so the stream is a
	// durable handoff buffer, not the source of truth.
	StreamRetention = 90 * 24 * time.Hour
)

// JetStreamGranter publishes permission records to NATS JetStream, one
// message per timeseries. Deduplication is delegated to JetStream via
// per-message ids, so retrying a whole grant after a partial failure never
// double-publishes the records that already landed.
type JetStreamGranter struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	channel string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewJetStreamGranter connects to NATS and ensures the permissions stream
// exists. channel namespaces the published subjects by deployment. The
// metrics parameter may be nil.
func NewJetStreamGranter(natsURL, channel string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamGranter, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("paygate-granter"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	granter := &JetStreamGranter{
		nc:      nc,
		js:      js,
		channel: channel,
		metrics: m,
		logger:  logger,
	}

	if err := granter.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("permission granter initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return granter, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (g *JetStreamGranter) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := g.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			g.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	g.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Dataset access permission records",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		// The dedup window must exceed any realistic client retry span so a
		// re-driven grant for the same payment is absorbed, not duplicated.
		Duplicates: 10 * time.Minute,
	}

	_, err = g.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	g.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// Grant publishes one GRANTED record per timeseries and returns the opaque
// publish ids in the same order as timeseriesIDs. Records are published in
// parallel; any failure fails the whole grant, and the caller may retry with
// the same idempotencyKey without duplicating the records that succeeded.
func (g *JetStreamGranter) Grant(ctx context.Context, authorizer, requestor, datasetID string, timeseriesIDs []string, idempotencyKey string) ([]string, error) {
	if len(timeseriesIDs) == 0 {
		return nil, nil
	}

	subject := fmt.Sprintf("permissions.%s.%s", g.channel, datasetID)
	hashes := make([]string, len(timeseriesIDs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, tsID := range timeseriesIDs {
		eg.Go(func() error {
			record := &PermissionRecord{
				Authorizer:   authorizer,
				Requestor:    requestor,
				DatasetID:    datasetID,
				TimeseriesID: tsID,
				Status:       StatusGranted,
			}
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal permission record: %w", err)
			}

			start := time.Now()
			ack, err := g.js.Publish(egCtx, subject, data,
				jetstream.WithMsgID(fmt.Sprintf("%s:%s", idempotencyKey, tsID)),
			)
			if err != nil {
				return fmt.Errorf("failed to publish permission for timeseries %s: %w", tsID, err)
			}
			if g.metrics != nil {
				g.metrics.RecordGrantPublishDuration(time.Since(start).Seconds())
			}

			hashes[i] = fmt.Sprintf("%s-%d", ack.Stream, ack.Sequence)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Debug("published permission grants",
		"subject", subject,
		"authorizer", authorizer,
		"requestor", requestor,
		"count", len(hashes),
	)

	return hashes, nil
}

// Close closes the connection to NATS.
func (g *JetStreamGranter) Close() error {
	if g.nc != nil {
		g.nc.Close()
		g.logger.Info("permission granter closed")
	}
	return nil
}
