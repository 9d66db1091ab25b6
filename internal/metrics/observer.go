package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys recorded on analysis metrics.
const (
	AttrSource  = "findings.source"
	AttrOutcome = "analysis.outcome"
	AttrReason  = "fallback.reason"
	AttrMode    = "analysis.domain_mode"
)

// Analysis outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeNoInput   = "no_findings"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed_request"
)

// AnalysisObserver records counters for compliance analyses.
type AnalysisObserver struct {
	meter           metric.Meter
	analysesCounter metric.Int64Counter
	findingsCounter metric.Int64Counter
	fallbackCounter metric.Int64Counter
}

func NewAnalysisObserver(meter metric.Meter) (*AnalysisObserver, error) {
	analyses, err := meter.Int64Counter(
		"defenseye.analyses",
		metric.WithDescription("Number of compliance analyses by outcome"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, err
	}

	findings, err := meter.Int64Counter(
		"defenseye.findings.processed",
		metric.WithDescription("Number of findings fed into compliance analyses"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"defenseye.source.fallbacks",
		metric.WithDescription("Number of times a findings source fell back to the next one"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, err
	}

	return &AnalysisObserver{
		meter:           meter,
		analysesCounter: analyses,
		findingsCounter: findings,
		fallbackCounter: fallbacks,
	}, nil
}

// Analyzed records a finished analysis and the number of findings it covered.
func (o *AnalysisObserver) Analyzed(ctx context.Context, findings int, attrs ...attribute.KeyValue) {
	o.analysesCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String(AttrOutcome, OutcomeSuccess))...))
	o.findingsCounter.Add(ctx, int64(findings), metric.WithAttributes(attrs...))
}

// Failed records an analysis that did not produce a report.
func (o *AnalysisObserver) Failed(ctx context.Context, outcome string, attrs ...attribute.KeyValue) {
	o.analysesCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String(AttrOutcome, outcome))...))
}

// Fallback records a source failing over to the next one.
func (o *AnalysisObserver) Fallback(ctx context.Context, attrs ...attribute.KeyValue) {
	o.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
