//go:build !otelotlp

package observability

import (
	"context"
)

// InitTracer is a no-op by default to keep builds lightweight and avoid
// heavy OTLP deps. Build with -tags otelotlp for a real implementation.
func InitTracer(serviceName string) func(context.Context) error {
	return func(context.Context) error { return nil }
}
