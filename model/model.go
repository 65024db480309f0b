//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package model provides the boundary with the hosted completion service.
//
// The workflow treats the completion service as an opaque call: a prompt
// plus tool declarations go in, a structured completion (text or tool
// call) comes out. Implementations must honor the caller's context and
// apply their own per-attempt timeout; transport failures are retried per
// the configured RetryPolicy, parse failures are not.
package model

import "context"

// Model is the interface for completion backends.
type Model interface {
	// GenerateContent performs a single completion call. A non-nil error
	// is a *ServiceError after retries were exhausted, or a context error.
	GenerateContent(ctx context.Context, request *Request) (*Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
