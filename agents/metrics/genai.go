/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records language-model usage with OpenTelemetry.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// GenAI holds the model usage instruments. Instruments that fail to
// register fall back to no-ops, so recording never fails.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	requests         metric.Int64Counter
	latency          metric.Float64Histogram
}

// NewGenAI registers the instruments on the global meter provider under
// meterName. The model name is a dimension, not part of the meter name.
func NewGenAI(meterName string) *GenAI {
	return NewGenAIWithProvider(otel.GetMeterProvider(), meterName)
}

// NewGenAIWithProvider is NewGenAI against an explicit provider.
func NewGenAIWithProvider(mp metric.MeterProvider, meterName string) *GenAI {
	meter := mp.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	requests, err := meter.Int64Counter("genai.requests",
		metric.WithDescription("The number of model requests by outcome"),
		metric.WithUnit("{requests}"))
	if err != nil {
		slog.Warn("Failed to create request counter, metrics will be disabled", "error", err, "meter", meterName)
		requests = noop.Int64Counter{}
	}

	latency, err := meter.Float64Histogram("genai.request.duration",
		metric.WithDescription("Wall-clock time of model requests"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("Failed to create latency histogram, metrics will be disabled", "error", err, "meter", meterName)
		latency = noop.Float64Histogram{}
	}

	return &GenAI{
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		requests:         requests,
		latency:          latency,
	}
}

// RecordTokens records token usage for one model response.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	set := m.attributes(ctx, model, attrs)
	m.promptTokens.Add(ctx, promptTokens, metric.WithAttributes(set...))
	m.completionTokens.Add(ctx, completionTokens, metric.WithAttributes(set...))
}

// RecordRequest records the outcome and latency of one model call.
func (m *GenAI) RecordRequest(ctx context.Context, model string, elapsed time.Duration, err error, attrs ...attribute.KeyValue) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	set := m.attributes(ctx, model, append(attrs, attribute.String("outcome", outcome)))
	m.requests.Add(ctx, 1, metric.WithAttributes(set...))
	m.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(set...))
}

func (m *GenAI) attributes(ctx context.Context, model string, extra []attribute.KeyValue) []attribute.KeyValue {
	set := []attribute.KeyValue{attribute.String("model", model)}
	set = append(set, FromContext(ctx)...)
	return append(set, extra...)
}
