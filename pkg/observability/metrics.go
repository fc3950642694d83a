// Package observability emits operational metrics to CloudWatch. Metrics are
// buffered and flushed in batches; with no client configured every call is a
// no-op, so callers never need to guard on the environment.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricData accepts at most 1000 datums per call; flush well before that
const flushThreshold = 20

// Metrics buffers metric datums and ships them to CloudWatch
type Metrics struct {
	namespace string
	client    *cloudwatch.Client
	logger    *zap.Logger

	mu     sync.Mutex
	buffer []types.MetricDatum
}

// NewMetrics creates a metrics emitter. A nil client disables emission.
func NewMetrics(namespace string, client *cloudwatch.Client, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

// Count records an occurrence count for a named metric
func (m *Metrics) Count(ctx context.Context, name string, value float64, dimensions map[string]string) {
	m.record(ctx, name, value, types.StandardUnitCount, dimensions)
}

// Duration records an elapsed time in milliseconds
func (m *Metrics) Duration(ctx context.Context, name string, elapsed time.Duration, dimensions map[string]string) {
	m.record(ctx, name, float64(elapsed.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *Metrics) record(ctx context.Context, name string, value float64, unit types.StandardUnit, dimensions map[string]string) {
	if m.client == nil {
		return
	}

	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now().UTC()),
	}
	for k, v := range dimensions {
		datum.Dimensions = append(datum.Dimensions, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	m.mu.Lock()
	m.buffer = append(m.buffer, datum)
	shouldFlush := len(m.buffer) >= flushThreshold
	m.mu.Unlock()

	if shouldFlush {
		m.Flush(ctx)
	}
}

// Flush sends all buffered datums. Failures are logged, not returned;
// metrics must never fail a request.
func (m *Metrics) Flush(ctx context.Context) {
	if m.client == nil {
		return
	}

	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: batch,
	})
	if err != nil {
		m.logger.Warn("failed to flush metrics",
			zap.Int("count", len(batch)),
			zap.Error(err))
	}
}
