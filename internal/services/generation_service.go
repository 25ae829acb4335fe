package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageforge/internal/config"
	"imageforge/internal/inference"
	"imageforge/internal/models"
	"imageforge/internal/styles"
)

// InferenceClient is the slice of the API client the orchestrator needs.
type InferenceClient interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

// JobStatus values for background generation jobs.
const (
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job is a snapshot of a background generation run.
type Job struct {
	ID         string                `json:"id"`
	Status     string                `json:"status"`
	Prompt     string                `json:"prompt"`
	Style      string                `json:"style"`
	Entries    []models.GalleryEntry `json:"entries,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

type JobNotFoundError struct {
	ID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.ID)
}

type GenerationService interface {
	Generate(ctx context.Context, req models.GenerationRequest) ([]models.GalleryEntry, error)
	StartJob(req models.GenerationRequest) (string, error)
	JobStatus(id string) (*Job, error)
	CancelJob(id string) error
	Shutdown()
}

type jobState struct {
	job    Job
	cancel context.CancelFunc
	err    error
}

type generationService struct {
	cfg     *config.Config
	client  InferenceClient
	catalog *styles.Catalog
	gallery GalleryService
	log     *zap.Logger

	mu   sync.Mutex
	jobs map[string]*jobState
	wg   sync.WaitGroup
}

func NewGenerationService(cfg *config.Config, client InferenceClient, catalog *styles.Catalog, gallery GalleryService, logger *zap.Logger) GenerationService {
	return &generationService{
		cfg:     cfg,
		client:  client,
		catalog: catalog,
		gallery: gallery,
		log:     logger,
		jobs:    make(map[string]*jobState),
	}
}

// Generate runs a request to completion: validate, apply the style
// preset, call the inference API and persist the results.
func (s *generationService) Generate(ctx context.Context, req models.GenerationRequest) ([]models.GalleryEntry, error) {
	prepared, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Generate(ctx, *prepared)
	if err != nil {
		return nil, err
	}
	// Keep the caller's style and prompt on the stored entries, not the
	// expanded ones sent to the model.
	result.Request.Prompt = req.Prompt
	result.Request.Style = prepared.Style

	entries, err := s.gallery.Save(result)
	if err != nil {
		return entries, fmt.Errorf("save generated images: %w", err)
	}
	return entries, nil
}

// StartJob validates the request, then runs generation in the
// background. The returned id is used to poll status and to cancel.
func (s *generationService) StartJob(req models.GenerationRequest) (string, error) {
	if _, err := s.prepare(req); err != nil {
		return "", err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	state := &jobState{
		job: Job{
			ID:        id,
			Status:    JobRunning,
			Prompt:    req.Prompt,
			Style:     req.Style,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	s.mu.Lock()
	s.jobs[id] = state
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		entries, err := s.Generate(ctx, req)
		now := time.Now().UTC()

		s.mu.Lock()
		defer s.mu.Unlock()
		state.job.FinishedAt = &now
		switch {
		case err == nil:
			state.job.Status = JobSucceeded
			state.job.Entries = entries
		case ctx.Err() != nil:
			state.job.Status = JobCancelled
		default:
			state.job.Status = JobFailed
			state.job.Error = err.Error()
			state.err = err
			s.log.Warn("generation job failed", zap.String("id", id), zap.Error(err))
		}
	}()

	s.log.Info("generation job started",
		zap.String("id", id), zap.String("style", req.Style))
	return id, nil
}

func (s *generationService) JobStatus(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok {
		return nil, &JobNotFoundError{ID: id}
	}
	snapshot := state.job
	return &snapshot, nil
}

// CancelJob requests cancellation. Cancelling a finished job is a
// no-op rather than an error.
func (s *generationService) CancelJob(id string) error {
	s.mu.Lock()
	state, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return &JobNotFoundError{ID: id}
	}
	state.cancel()
	return nil
}

// Shutdown cancels every running job and waits for the workers to exit.
func (s *generationService) Shutdown() {
	s.mu.Lock()
	for _, state := range s.jobs {
		state.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// prepare validates the request against the configured bounds and
// expands the style preset into the prompt. The input is not mutated.
func (s *generationService) prepare(req models.GenerationRequest) (*models.GenerationRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, &inference.InvalidParameterError{Message: "prompt must not be empty"}
	}

	if req.Width == 0 {
		req.Width = s.cfg.DefaultWidth
	}
	if req.Height == 0 {
		req.Height = s.cfg.DefaultHeight
	}
	if req.Steps == 0 {
		req.Steps = s.cfg.DefaultSteps
	}
	if req.GuidanceScale == 0 {
		req.GuidanceScale = s.cfg.DefaultGuidance
	}
	if req.VariationCount == 0 {
		req.VariationCount = 1
	}

	if req.Width < config.MinDimension || req.Width > config.MaxDimension ||
		req.Height < config.MinDimension || req.Height > config.MaxDimension {
		return nil, &inference.InvalidParameterError{
			Message: fmt.Sprintf("dimensions must be between %d and %d", config.MinDimension, config.MaxDimension),
		}
	}
	if req.Width%8 != 0 || req.Height%8 != 0 {
		return nil, &inference.InvalidParameterError{Message: "dimensions must be multiples of 8"}
	}
	if req.Steps < config.MinSteps || req.Steps > config.MaxSteps {
		return nil, &inference.InvalidParameterError{
			Message: fmt.Sprintf("steps must be between %d and %d", config.MinSteps, config.MaxSteps),
		}
	}
	if req.GuidanceScale < config.MinGuidance || req.GuidanceScale > config.MaxGuidance {
		return nil, &inference.InvalidParameterError{
			Message: fmt.Sprintf("guidance scale must be between %.1f and %.1f", config.MinGuidance, config.MaxGuidance),
		}
	}
	if req.VariationCount < 1 || req.VariationCount > config.MaxVariations {
		return nil, &inference.InvalidParameterError{
			Message: fmt.Sprintf("variation count must be between 1 and %d", config.MaxVariations),
		}
	}

	styleName := req.Style
	if styleName == "" {
		styleName = s.catalog.Default()
	}
	preset, err := s.catalog.Resolve(styleName)
	if err != nil {
		return nil, err
	}

	req.Style = preset.Name
	// Preset suffixes carry their own leading separator.
	req.Prompt = prompt + preset.PromptSuffix
	req.NegativePrompt = mergeNegative(req.NegativePrompt, preset.NegativePrompt)

	return &req, nil
}

// mergeNegative joins the user's negative prompt with the preset's,
// dropping duplicate terms.
func mergeNegative(user, preset string) string {
	seen := make(map[string]struct{})
	var terms []string
	for _, part := range strings.Split(user+","+preset, ",") {
		term := strings.TrimSpace(part)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, term)
	}
	return strings.Join(terms, ", ")
}
