// Package logging provides a minimal logging interface and adapters for reportgraph.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, planner and registry use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - GraphLogger with session/component context and node, LLM and graph helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text"})
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
//
// Messages are dotted lower case event names (engine.session.start,
// graph.node.error) followed by key/value pairs.
package logging
