package models

import "time"

// GenerationRequest carries one user request to the inference provider.
type GenerationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Style          string  `json:"style"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	VariationCount int     `json:"variation_count"`
	Seed           *int64  `json:"seed,omitempty"`
}

// GeneratedImage is one binary variation returned by the provider.
type GeneratedImage struct {
	Data  []byte
	Seed  int64
	Model string
}

// GenerationResult is immutable once produced: the images are in
// variation order and the request is the one that produced them.
type GenerationResult struct {
	Images    []GeneratedImage
	Request   GenerationRequest
	CreatedAt time.Time
}
