package models

// GenerateRequest is the body accepted by POST /generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the success body of POST /generate.
type GenerateResponse struct {
	ImageURL string `json:"imageUrl"`
}

// ErrorResponse is the failure body of both proxy endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PredictionInput holds the fixed generation parameters sent upstream.
type PredictionInput struct {
	Prompt            string  `json:"prompt"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Scheduler         string  `json:"scheduler"`
	NumOutputs        int     `json:"num_outputs"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

// PredictionRequest is a Replicate-style prediction request.
type PredictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   PredictionInput `json:"input"`
}

// PredictionResponse is a Replicate-style prediction response.
type PredictionResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  any      `json:"error"`
}

// Prediction statuses reported by the provider.
const (
	PredictionSucceeded = "succeeded"
	PredictionFailed    = "failed"
	PredictionCanceled  = "canceled"
)
