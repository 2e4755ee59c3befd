/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	runsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugfixer_runs_total",
			Help: "Total number of fix pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bugfixer_stage_duration_seconds",
			Help:    "Duration of each fix pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
)

// runOutcome labels bugfixer_runs_total; failures use the fault kind.
func runOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := faultKind(err); k != "" {
		return k
	}
	return "error"
}

func tracer() oteltrace.Tracer {
	return otel.Tracer("chainguard.bugfixer.pipeline", oteltrace.WithInstrumentationVersion("1.0.0"))
}

// observe runs fn inside a span and records its duration.
func observe(ctx context.Context, s stage, fn func(context.Context) error) error {
	ctx, span := tracer().Start(ctx, "pipeline.stage", oteltrace.WithAttributes(attribute.String("stage", string(s))))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	stageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
