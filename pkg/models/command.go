// Package models contains shared data models used across the sqlrunner codebase.
package models

import "time"

const (
	CommandStatusSuccess = "success"
	CommandStatusError   = "error"
)

// CommandResult is the outcome of executing one SQL statement. Error is set
// iff Status is CommandStatusError.
type CommandResult struct {
	Command         string    `json:"command"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
	Error           *string   `json:"error"`
	Timestamp       time.Time `json:"timestamp"`
}

// Succeeded reports whether the command ran without a database error.
func (r CommandResult) Succeeded() bool {
	return r.Status == CommandStatusSuccess
}
