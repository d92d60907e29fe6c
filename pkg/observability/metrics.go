package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricProposalsTotal = "sranges.proposals.total"
	metricBatchDuration  = "sranges.batch.duration.seconds"
	metricLogDensity     = "sranges.chain.log_density"
	metricIterations     = "sranges.chain.iterations.total"

	attrChain    = "chain"
	attrOperator = "operator"
	attrOutcome  = "outcome"
)

// Proposal outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	// OutcomeInfeasible marks proposals the operator refused outright.
	OutcomeInfeasible = "infeasible"
)

// batchBucketBoundaries covers 1ms to 60s per logged batch of iterations.
var batchBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}

// ChainMetrics holds the OTel instruments recorded by MCMC chains.
type ChainMetrics struct {
	proposals     metric.Int64Counter
	iterations    metric.Int64Counter
	batchDuration metric.Float64Histogram
	logDensity    metric.Float64Gauge
}

// NewChainMetrics creates chain instruments from the given meter.
func NewChainMetrics(mt metric.Meter) (*ChainMetrics, error) {
	proposals, err := mt.Int64Counter(metricProposalsTotal,
		metric.WithDescription("Proposals by operator and outcome"),
		metric.WithUnit("{proposal}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricProposalsTotal, err)
	}

	iterations, err := mt.Int64Counter(metricIterations,
		metric.WithDescription("Completed chain iterations"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricIterations, err)
	}

	batchDuration, err := mt.Float64Histogram(metricBatchDuration,
		metric.WithDescription("Wall time of one logging batch of iterations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(batchBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBatchDuration, err)
	}

	logDensity, err := mt.Float64Gauge(metricLogDensity,
		metric.WithDescription("Current log target density"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLogDensity, err)
	}

	return &ChainMetrics{
		proposals:     proposals,
		iterations:    iterations,
		batchDuration: batchDuration,
		logDensity:    logDensity,
	}, nil
}

// RecordProposal counts one proposal.
func (cm *ChainMetrics) RecordProposal(ctx context.Context, chain int, operator, outcome string) {
	cm.proposals.Add(ctx, 1, metric.WithAttributes(
		attribute.Int(attrChain, chain),
		attribute.String(attrOperator, operator),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordBatch records a batch of iterations and the chain's current log density.
func (cm *ChainMetrics) RecordBatch(ctx context.Context, chain int, iterations int64, elapsed time.Duration, logDensity float64) {
	attrs := metric.WithAttributes(attribute.Int(attrChain, chain))

	cm.iterations.Add(ctx, iterations, attrs)
	cm.batchDuration.Record(ctx, elapsed.Seconds(), attrs)
	cm.logDensity.Record(ctx, logDensity, attrs)
}
