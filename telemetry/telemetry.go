//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package telemetry exposes the tracer used to instrument workflow
// execution. By default spans go to a noop provider; callers that run an
// OpenTelemetry SDK can install their provider via SetTracerProvider.
package telemetry

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentName identifies this library to the tracer provider.
const InstrumentName = "github.com/dataquest-ai/analysis-engine"

// TracerProvider is the global tracer provider for telemetry.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer is the global tracer instance used by the workflow machine.
var Tracer trace.Tracer = TracerProvider.Tracer(InstrumentName)

// SetTracerProvider installs a tracer provider, replacing the noop default.
func SetTracerProvider(tp trace.TracerProvider) {
	if tp == nil {
		return
	}
	TracerProvider = tp
	Tracer = tp.Tracer(InstrumentName)
}
