package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/models"
)

const predictionsPath = "/v1/predictions"

// Replicate is a Provider for Replicate-style prediction APIs.
type Replicate struct {
	baseURL   string
	apiKey    string
	model     string
	usagePath string
	gen       config.GenerationConfig
	client    *http.Client
}

var _ Provider = (*Replicate)(nil)

// NewReplicate creates a Replicate provider. A nil client means
// http.DefaultClient.
func NewReplicate(p config.ProviderConfig, gen config.GenerationConfig, client *http.Client) *Replicate {
	if client == nil {
		client = http.DefaultClient
	}
	return &Replicate{
		baseURL:   strings.TrimRight(p.URL, "/"),
		apiKey:    p.APIKey,
		model:     p.Model,
		usagePath: p.UsagePath,
		gen:       gen,
		client:    client,
	}
}

// upstreamResult holds the response from a single upstream call.
type upstreamResult struct {
	statusCode int
	body       []byte
}

func (r *Replicate) do(ctx context.Context, method, path string, body []byte) (*upstreamResult, error) {
	target, err := url.Parse(r.baseURL + path)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid provider URL", goerr.V("url", r.baseURL+path))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, goerr.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Prefer", "wait")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "call provider", goerr.V("path", path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "read response", goerr.V("path", path))
	}

	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}

// Generate implements Provider.
func (r *Replicate) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(models.PredictionRequest{
		Version: r.model,
		Input: models.PredictionInput{
			Prompt:            prompt,
			Width:             r.gen.Width,
			Height:            r.gen.Height,
			Scheduler:         r.gen.Scheduler,
			NumOutputs:        r.gen.NumOutputs,
			GuidanceScale:     r.gen.GuidanceScale,
			NegativePrompt:    r.gen.NegativePrompt,
			NumInferenceSteps: r.gen.NumInferenceSteps,
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "encode prediction request")
	}

	res, err := r.do(ctx, http.MethodPost, predictionsPath, payload)
	if err != nil {
		return "", err
	}
	if res.statusCode < 200 || res.statusCode > 299 {
		return "", upstreamError(res)
	}

	var pred models.PredictionResponse
	if err := json.Unmarshal(res.body, &pred); err != nil {
		return "", goerr.Wrap(err, "decode prediction response")
	}

	switch pred.Status {
	case models.PredictionFailed, models.PredictionCanceled:
		msg := fmt.Sprintf("prediction %s", pred.Status)
		if s := errorText(pred.Error); s != "" {
			msg = s
		}
		return "", &Error{StatusCode: http.StatusBadGateway, Message: msg}
	}

	if len(pred.Output) == 0 || pred.Output[0] == "" {
		return "", &Error{StatusCode: http.StatusBadGateway, Message: "provider returned no image"}
	}
	return pred.Output[0], nil
}

// Usage implements Provider.
func (r *Replicate) Usage(ctx context.Context) (models.UsageInfo, error) {
	if r.usagePath == "" {
		return models.UsageInfo{}, ErrUsageUnsupported
	}

	res, err := r.do(ctx, http.MethodGet, r.usagePath, nil)
	if err != nil {
		return models.UsageInfo{}, err
	}
	if res.statusCode < 200 || res.statusCode > 299 {
		return models.UsageInfo{}, upstreamError(res)
	}

	var raw models.ProviderUsage
	if err := json.Unmarshal(res.body, &raw); err != nil {
		return models.UsageInfo{}, goerr.Wrap(err, "decode usage response")
	}
	if raw.DailyQuota == nil || raw.Used == nil {
		return models.UsageInfo{}, goerr.New("malformed usage response", goerr.V("body", string(res.body)))
	}
	return models.UsageInfo{DailyQuota: *raw.DailyQuota, Used: *raw.Used}, nil
}

// upstreamError extracts the provider's own message from a non-2xx response.
func upstreamError(res *upstreamResult) *Error {
	var body struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
		Title  any `json:"title"`
	}
	msg := ""
	if err := json.Unmarshal(res.body, &body); err == nil {
		for _, v := range []any{body.Detail, body.Error, body.Title} {
			if s := errorText(v); s != "" {
				msg = s
				break
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(res.statusCode)
	}
	return &Error{StatusCode: res.statusCode, Message: msg}
}

// errorText turns an error field of unknown shape into a message.
func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			return m
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
