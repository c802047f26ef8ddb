// Package flume is a workflow definition and execution engine. Callers
// register named, ordered pipelines of step references and trigger
// fire-and-forget sequential executions against arbitrary input data,
// polling (or subscribing) for status.
package flume

const (
	// Name is the service name reported in logs
	Name = "flume"

	// Version is the engine version reported in logs
	Version = "0.2.0"
)
