package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imageforge/internal/config"
	"imageforge/internal/inference"
	"imageforge/internal/models"
	"imageforge/internal/styles"
)

type inferenceClientMock struct {
	GenerateFunc func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

func (m *inferenceClientMock) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	return m.GenerateFunc(ctx, req)
}

type galleryServiceMock struct {
	SaveFunc func(result *models.GenerationResult) ([]models.GalleryEntry, error)
}

func (m *galleryServiceMock) Save(result *models.GenerationResult) ([]models.GalleryEntry, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(result)
	}
	return []models.GalleryEntry{{ID: "saved"}}, nil
}

func (m *galleryServiceMock) List(limit, offset int) ([]models.GalleryEntry, error) { return nil, nil }
func (m *galleryServiceMock) Count() (int64, error)                                { return 0, nil }
func (m *galleryServiceMock) Get(id string) (*models.GalleryEntry, error)          { return nil, nil }
func (m *galleryServiceMock) Image(id string) ([]byte, error)                      { return nil, nil }
func (m *galleryServiceMock) Thumbnail(id string) ([]byte, error)                  { return nil, nil }
func (m *galleryServiceMock) Delete(id string) error                               { return nil }
func (m *galleryServiceMock) Archive() ([]byte, error)                             { return nil, nil }
func (m *galleryServiceMock) SweepOrphans() (int, error)                           { return 0, nil }

func newTestGenerationService(t *testing.T, client InferenceClient, gallery GalleryService) GenerationService {
	t.Helper()
	catalog, err := styles.Load()
	require.NoError(t, err)
	if gallery == nil {
		gallery = &galleryServiceMock{}
	}
	return NewGenerationService(config.Defaults(), client, catalog, gallery, zap.NewNop())
}

func okClient(captured *models.GenerationRequest) *inferenceClientMock {
	return &inferenceClientMock{
		GenerateFunc: func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
			if captured != nil {
				*captured = req
			}
			return &models.GenerationResult{
				Images:    []models.GeneratedImage{{Data: []byte("img"), Seed: 7, Model: "m"}},
				Request:   req,
				CreatedAt: time.Now().UTC(),
			}, nil
		},
	}
}

func TestGenerationService_Generate_AppliesStylePreset(t *testing.T) {
	var sent models.GenerationRequest
	svc := newTestGenerationService(t, okClient(&sent), nil)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{
		Prompt: "a red fox",
		Style:  "Anime",
	})
	require.NoError(t, err)

	assert.Contains(t, sent.Prompt, "a red fox")
	assert.Contains(t, sent.Prompt, "anime style")
	assert.Contains(t, sent.NegativePrompt, "western cartoon")
}

func TestGenerationService_Generate_DefaultStyle(t *testing.T) {
	var sent models.GenerationRequest
	svc := newTestGenerationService(t, okClient(&sent), nil)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{Prompt: "a hill"})
	require.NoError(t, err)
	assert.Equal(t, "Photorealistic", sent.Style)
}

func TestGenerationService_Generate_AppliesDefaults(t *testing.T) {
	var sent models.GenerationRequest
	svc := newTestGenerationService(t, okClient(&sent), nil)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{Prompt: "a hill"})
	require.NoError(t, err)

	cfg := config.Defaults()
	assert.Equal(t, cfg.DefaultWidth, sent.Width)
	assert.Equal(t, cfg.DefaultHeight, sent.Height)
	assert.Equal(t, cfg.DefaultSteps, sent.Steps)
	assert.Equal(t, cfg.DefaultGuidance, sent.GuidanceScale)
	assert.Equal(t, 1, sent.VariationCount)
}

func TestGenerationService_Generate_MergesNegativePrompts(t *testing.T) {
	var sent models.GenerationRequest
	svc := newTestGenerationService(t, okClient(&sent), nil)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{
		Prompt:         "a hill",
		Style:          "Anime",
		NegativePrompt: "text, watermark, blurry",
	})
	require.NoError(t, err)

	assert.Contains(t, sent.NegativePrompt, "watermark")
	// The duplicate term appears once.
	assert.Equal(t, 1, countOccurrences(sent.NegativePrompt, "blurry"))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestGenerationService_Generate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.GenerationRequest
	}{
		{"empty prompt", models.GenerationRequest{Prompt: "   "}},
		{"width too small", models.GenerationRequest{Prompt: "p", Width: 128}},
		{"height too large", models.GenerationRequest{Prompt: "p", Height: 2048}},
		{"width not multiple of 8", models.GenerationRequest{Prompt: "p", Width: 500}},
		{"steps too low", models.GenerationRequest{Prompt: "p", Steps: 5}},
		{"steps too high", models.GenerationRequest{Prompt: "p", Steps: 100}},
		{"guidance too high", models.GenerationRequest{Prompt: "p", GuidanceScale: 30}},
		{"too many variations", models.GenerationRequest{Prompt: "p", VariationCount: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestGenerationService(t, okClient(nil), nil)
			_, err := svc.Generate(context.Background(), tt.req)

			var paramErr *inference.InvalidParameterError
			assert.True(t, errors.As(err, &paramErr), "got %v", err)
		})
	}
}

func TestGenerationService_Generate_UnknownStyle(t *testing.T) {
	svc := newTestGenerationService(t, okClient(nil), nil)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{
		Prompt: "a hill",
		Style:  "Vaporwave",
	})

	var styleErr *styles.UnknownStyleError
	assert.True(t, errors.As(err, &styleErr))
}

func TestGenerationService_Generate_StoresOriginalPrompt(t *testing.T) {
	var saved *models.GenerationResult
	gallery := &galleryServiceMock{
		SaveFunc: func(result *models.GenerationResult) ([]models.GalleryEntry, error) {
			saved = result
			return nil, nil
		},
	}
	svc := newTestGenerationService(t, okClient(nil), gallery)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{
		Prompt: "a red fox",
		Style:  "Anime",
	})
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "a red fox", saved.Request.Prompt)
	assert.Equal(t, "Anime", saved.Request.Style)
}

func TestGenerationService_Job_Lifecycle(t *testing.T) {
	release := make(chan struct{})
	client := &inferenceClientMock{
		GenerateFunc: func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &models.GenerationResult{
				Images:  []models.GeneratedImage{{Data: []byte("img")}},
				Request: req,
			}, nil
		},
	}
	svc := newTestGenerationService(t, client, nil)

	id, err := svc.StartJob(models.GenerationRequest{Prompt: "a hill"})
	require.NoError(t, err)

	job, err := svc.JobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, job.Status)

	close(release)
	require.Eventually(t, func() bool {
		job, err := svc.JobStatus(id)
		return err == nil && job.Status == JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	job, err = svc.JobStatus(id)
	require.NoError(t, err)
	assert.NotNil(t, job.FinishedAt)
	assert.NotEmpty(t, job.Entries)
}

func TestGenerationService_Job_Cancel(t *testing.T) {
	client := &inferenceClientMock{
		GenerateFunc: func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := newTestGenerationService(t, client, nil)

	id, err := svc.StartJob(models.GenerationRequest{Prompt: "a hill"})
	require.NoError(t, err)

	require.NoError(t, svc.CancelJob(id))
	require.Eventually(t, func() bool {
		job, err := svc.JobStatus(id)
		return err == nil && job.Status == JobCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGenerationService_Job_FailureRecorded(t *testing.T) {
	client := &inferenceClientMock{
		GenerateFunc: func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
			return nil, &inference.RateLimitError{Message: "quota exhausted"}
		},
	}
	svc := newTestGenerationService(t, client, nil)

	id, err := svc.StartJob(models.GenerationRequest{Prompt: "a hill"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := svc.JobStatus(id)
		return err == nil && job.Status == JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := svc.JobStatus(id)
	require.NoError(t, err)
	assert.Contains(t, job.Error, "quota exhausted")
}

func TestGenerationService_JobStatus_Unknown(t *testing.T) {
	svc := newTestGenerationService(t, okClient(nil), nil)

	_, err := svc.JobStatus("nope")
	var notFound *JobNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGenerationService_StartJob_InvalidRequest(t *testing.T) {
	svc := newTestGenerationService(t, okClient(nil), nil)

	_, err := svc.StartJob(models.GenerationRequest{Prompt: ""})
	var paramErr *inference.InvalidParameterError
	assert.True(t, errors.As(err, &paramErr))
}
