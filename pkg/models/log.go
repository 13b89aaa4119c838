package models

import (
	"errors"
	"fmt"
)

// LogStatus is the outcome of a single generation attempt.
type LogStatus string

const (
	StatusSuccess LogStatus = "Success"
	StatusFailed  LogStatus = "Failed"
	StatusCached  LogStatus = "Cached"
)

// LogEntry records one generation attempt. Exactly one of ImageURL and Error
// is set, depending on Status.
type LogEntry struct {
	Prompt         string    `json:"prompt"`
	Status         LogStatus `json:"status"`
	GenerationTime int64     `json:"generationTime"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// NewSuccess builds an entry for a prompt the provider answered.
func NewSuccess(prompt, imageURL string, elapsedMs int64) LogEntry {
	return LogEntry{Prompt: prompt, Status: StatusSuccess, GenerationTime: elapsedMs, ImageURL: imageURL}
}

// NewCached builds an entry for a prompt served from the generation cache.
func NewCached(prompt, imageURL string, elapsedMs int64) LogEntry {
	return LogEntry{Prompt: prompt, Status: StatusCached, GenerationTime: elapsedMs, ImageURL: imageURL}
}

// NewFailed builds an entry for a prompt whose generation failed.
func NewFailed(prompt, message string, elapsedMs int64) LogEntry {
	return LogEntry{Prompt: prompt, Status: StatusFailed, GenerationTime: elapsedMs, Error: message}
}

// Validate checks the status/field invariant.
func (e LogEntry) Validate() error {
	if e.Prompt == "" {
		return errors.New("log entry: empty prompt")
	}
	if e.GenerationTime < 0 {
		return fmt.Errorf("log entry: negative generation time %d", e.GenerationTime)
	}
	switch e.Status {
	case StatusSuccess, StatusCached:
		if e.ImageURL == "" || e.Error != "" {
			return fmt.Errorf("log entry: status %s requires imageUrl only", e.Status)
		}
	case StatusFailed:
		if e.Error == "" || e.ImageURL != "" {
			return fmt.Errorf("log entry: status %s requires error only", e.Status)
		}
	default:
		return fmt.Errorf("log entry: unknown status %q", e.Status)
	}
	return nil
}
