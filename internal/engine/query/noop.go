package query

import (
	"context"
	"time"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
)

type nopLogger struct{}

func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(error) {}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
	return ctx, nopSpan{}
}

func (nopTracer) EmitPlan(context.Context, []string) {}

type nopSpan struct{}

func (nopSpan) Write(p []byte) (int, error) { return len(p), nil }
func (nopSpan) End()                        {}
func (nopSpan) RecordError(error)           {}
func (nopSpan) SetAttribute(string, any)    {}

type nopMetrics struct{}

func (nopMetrics) RecordEvent(string, domain.QueryEvent) {}
func (nopMetrics) ObserveDuration(string, time.Duration) {}

type nopSink struct{}

func (nopSink) Emit(domain.Diagnostic) {}
