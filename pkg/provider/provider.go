// Package provider talks to the remote image generation and usage APIs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/models"
)

// Provider generates images and reports quota usage.
type Provider interface {
	// Generate sends prompt with the fixed generation parameters and returns
	// a reference to the produced image.
	Generate(ctx context.Context, prompt string) (string, error)
	// Usage returns the caller's quota counters.
	Usage(ctx context.Context) (models.UsageInfo, error)
}

// ErrUsageUnsupported is returned by backends without a usage endpoint.
var ErrUsageUnsupported = errors.New("usage reporting not supported by provider")

// Error is a failure reported by the remote provider itself.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// StatusOf returns the HTTP status a proxy should relay for err.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) && pe.StatusCode >= 400 {
		return pe.StatusCode
	}
	return http.StatusInternalServerError
}

// MessageOf returns the human-readable description of err for clients.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

// New builds the Provider selected by cfg.Provider.Type.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Provider.Type {
	case config.ProviderReplicate, "":
		return NewReplicate(cfg.Provider, cfg.Generation, nil), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.Provider, cfg.Generation)
	default:
		return nil, goerr.New("unknown provider type", goerr.V("type", cfg.Provider.Type))
	}
}
