/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
)

type attrsKey struct{}

// WithAttributes returns a context whose recorded metrics carry attrs in
// addition to any already attached, for example the repository being fixed.
func WithAttributes(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	merged := append(slices.Clone(FromContext(ctx)), attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// FromContext returns the attributes attached with WithAttributes.
func FromContext(ctx context.Context) []attribute.KeyValue {
	attrs, _ := ctx.Value(attrsKey{}).([]attribute.KeyValue)
	return attrs
}
