package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"imageforge/internal/config"
	"imageforge/internal/models"
)

// KeyProvider resolves the bearer credential for the provider API.
type KeyProvider interface {
	APIKey() (string, error)
}

// Client talks to the hosted text-to-image inference API. It owns the
// retry policy for transient "model loading" responses and nothing
// else: no local storage, no image processing.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	model            string
	fallbacks        []string
	keys             KeyProvider
	maxAttempts      int
	backoffBase      time.Duration
	maxSuggestedWait time.Duration
	limiter          *rate.Limiter
	log              *zap.Logger
}

func NewClient(cfg *config.Config, keys KeyProvider, logger *zap.Logger) *Client {
	return &Client{
		httpClient:       &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:          strings.TrimRight(cfg.APIBaseURL, "/"),
		model:            cfg.Model,
		fallbacks:        cfg.AlternativeModels,
		keys:             keys,
		maxAttempts:      cfg.MaxAttempts,
		backoffBase:      cfg.BackoffBase,
		maxSuggestedWait: cfg.MaxSuggestedWait,
		limiter:          rate.NewLimiter(rate.Every(cfg.VariationPacing), 1),
		log:              logger,
	}
}

type generateParameters struct {
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Seed              int64   `json:"seed"`
}

type generatePayload struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type apiError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Generate issues one request per requested variation and returns the
// images in variation order. Hard failures (auth, quota, bad
// parameters) abort immediately; only "model loading" responses are
// retried, with exponential backoff bounded by the configured attempt
// budget.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	key, err := c.keys.APIKey()
	if err != nil || key == "" {
		return nil, &AuthenticationError{Message: "no API key configured"}
	}

	baseSeed := time.Now().Unix()
	if req.Seed != nil {
		baseSeed = *req.Seed
	}

	count := req.VariationCount
	if count < 1 {
		count = 1
	}

	images := make([]models.GeneratedImage, 0, count)
	for i := 0; i < count; i++ {
		// Pace successive variations so a burst of requests does not
		// trip the provider's rate limit.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		seed := baseSeed + int64(i)
		img, err := c.generateOne(ctx, req, key, seed)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}

	return &models.GenerationResult{
		Images:    images,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// generateOne walks the model list: the configured model first, then
// the alternatives. Typed hard errors never fall through to the next
// model.
func (c *Client) generateOne(ctx context.Context, req models.GenerationRequest, key string, seed int64) (*models.GeneratedImage, error) {
	attempts := 0
	var lastErr error

	for _, model := range append([]string{c.model}, c.fallbacks...) {
		data, n, err := c.requestWithRetry(ctx, model, req, key, seed)
		attempts += n
		if err == nil {
			return &models.GeneratedImage{Data: data, Seed: seed, Model: model}, nil
		}

		var authErr *AuthenticationError
		var rateErr *RateLimitError
		var paramErr *InvalidParameterError
		if errors.As(err, &authErr) || errors.As(err, &rateErr) || errors.As(err, &paramErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.log.Warn("model failed, trying next",
			zap.String("model", model), zap.Error(err))
		lastErr = err
	}

	return nil, &TransientUnavailableError{Attempts: attempts, Err: lastErr}
}

// requestWithRetry retries a single model through "loading" responses
// and reports how many attempts it used.
func (c *Client) requestWithRetry(ctx context.Context, model string, req models.GenerationRequest, key string, seed int64) ([]byte, int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffBase
	bo.MaxInterval = c.maxSuggestedWait
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		data, err := c.doRequest(ctx, model, req, key, seed)
		if err == nil {
			return data, attempt, nil
		}

		var loading *modelLoadingError
		if !errors.As(err, &loading) {
			return nil, attempt, err
		}
		if attempt >= c.maxAttempts {
			return nil, attempt, err
		}

		wait := bo.NextBackOff()
		if suggested := clampWait(loading.EstimatedWait, c.maxSuggestedWait); suggested > wait {
			wait = suggested
		}

		c.log.Info("model loading, retrying",
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))

		if err := sleepCtx(ctx, wait); err != nil {
			return nil, attempt, err
		}
	}
}

func (c *Client) doRequest(ctx context.Context, model string, req models.GenerationRequest, key string, seed int64) ([]byte, error) {
	payload := generatePayload{
		Inputs: req.Prompt,
		Parameters: generateParameters{
			NegativePrompt:    req.NegativePrompt,
			Width:             req.Width,
			Height:            req.Height,
			NumInferenceSteps: req.Steps,
			GuidanceScale:     req.GuidanceScale,
			Seed:              seed,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if !strings.HasPrefix(http.DetectContentType(respBody), "image/") {
			return nil, fmt.Errorf("response is not an image (%s)", http.DetectContentType(respBody))
		}
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthenticationError{Message: errorMessage(respBody, resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Message: errorMessage(respBody, resp.StatusCode)}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &InvalidParameterError{Message: errorMessage(respBody, resp.StatusCode)}
	case resp.StatusCode == http.StatusServiceUnavailable:
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.EstimatedTime > 0 {
			return nil, &modelLoadingError{
				Message:       apiErr.Error,
				EstimatedWait: time.Duration(apiErr.EstimatedTime * float64(time.Second)),
			}
		}
		return nil, &modelLoadingError{Message: errorMessage(respBody, resp.StatusCode)}
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorMessage(respBody, resp.StatusCode))
	}
}

func errorMessage(body []byte, status int) string {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return fmt.Sprintf("status %d", status)
}

// clampWait bounds the provider-suggested wait: it is external input
// and must not stall us indefinitely.
func clampWait(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
