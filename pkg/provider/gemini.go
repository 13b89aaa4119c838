package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/models"
)

const defaultGeminiModel = "gemini-2.5-flash-image"

// Gemini is a Provider backed by Gemini native image generation. Images are
// returned inline as data URLs.
type Gemini struct {
	client *genai.Client
	model  string
	gen    config.GenerationConfig
}

var _ Provider = (*Gemini)(nil)

// NewGemini creates a Gemini provider. An empty API key lets the SDK fall
// back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewGemini(ctx context.Context, p config.ProviderConfig, gen config.GenerationConfig) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}
	if p.APIKey != "" {
		clientCfg.APIKey = p.APIKey
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "create gemini client")
	}

	model := p.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model, gen: gen}, nil
}

// Generate implements Provider.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	text := prompt
	if g.gen.NegativePrompt != "" {
		text = fmt.Sprintf("%s\n\nAvoid: %s", prompt, g.gen.NegativePrompt)
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: text},
			},
		},
	}
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspectRatio(g.gen.Width, g.gen.Height),
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		return "", apiError(err, g.model)
	}
	return firstImage(result)
}

// Usage implements Provider. The Gemini API exposes no quota endpoint.
func (g *Gemini) Usage(context.Context) (models.UsageInfo, error) {
	return models.UsageInfo{}, ErrUsageUnsupported
}

// apiError relays the status and message of a Gemini API failure. Other
// errors are transport failures.
func apiError(err error, model string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= 400 {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Code)
		}
		return &Error{StatusCode: apiErr.Code, Message: msg}
	}
	return goerr.Wrap(err, "gemini generation failed", goerr.V("model", model))
}

func firstImage(result *genai.GenerateContentResponse) (string, error) {
	if result == nil {
		return "", &Error{StatusCode: http.StatusBadGateway, Message: "empty response from model"}
	}
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}
	return "", &Error{StatusCode: http.StatusBadGateway, Message: "provider returned no image"}
}

func aspectRatio(w, h int) string {
	switch {
	case w == h:
		return "1:1"
	case w*9 == h*16:
		return "16:9"
	case w*16 == h*9:
		return "9:16"
	case w*3 == h*4:
		return "4:3"
	case w*4 == h*3:
		return "3:4"
	default:
		return ""
	}
}
