// Package logging provides a minimal logging interface and adapters for supportdesk.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the graph runtime, the order agent and the HTTP server use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - DeskLogger with component and attribute cloning
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	desk := supportdesk.New(llm, store, func(o *supportdesk.Options) { o.Logger = logger })
package logging
