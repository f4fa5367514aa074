package store

import (
	"time"

	"havoc/checking"
	"havoc/op"
)

// A TestRecord is the serializable view of a test: the configuration facts
// worth keeping plus the run's outputs. Runtime-only state (sessions,
// barriers, in-flight histories) is never part of the record.
type TestRecord struct {
	Name        string           `json:"name"`
	RunID       string           `json:"run-id"`
	Nodes       []string         `json:"nodes"`
	Concurrency int              `json:"concurrency"`
	Start       time.Time        `json:"start"`
	History     []op.Op          `json:"history,omitempty"`
	Results     *checking.Result `json:"results,omitempty"`
}
