package services

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"imageforge/internal/database"
	"imageforge/internal/models"
	"imageforge/internal/repositories"
)

func newTestGallery(t *testing.T) (GalleryService, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Init(database.Config{
		Path:     filepath.Join(dir, "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	galleryDir := filepath.Join(dir, "gallery")
	repo := repositories.NewGalleryEntryRepository(db)
	return NewGalleryService(repo, galleryDir, zap.NewNop()), galleryDir
}

func testResult(t *testing.T, prompt string, createdAt time.Time) *models.GenerationResult {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))

	return &models.GenerationResult{
		Images: []models.GeneratedImage{
			{Data: buf.Bytes(), Seed: 11, Model: "test/model"},
		},
		Request:   models.GenerationRequest{Prompt: prompt, Style: "Photorealistic"},
		CreatedAt: createdAt,
	}
}

func TestGalleryService_Save(t *testing.T) {
	svc, dir := newTestGallery(t)

	createdAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	entries, err := svc.Save(testResult(t, "a red fox", createdAt))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "a red fox", entry.Prompt)
	assert.Equal(t, int64(11), entry.Seed)
	assert.Equal(t, 16, entry.Width)
	assert.Equal(t, 16, entry.Height)

	// Files land in a month-keyed subdirectory.
	assert.Equal(t, filepath.Join(dir, "2026-03"), filepath.Dir(entry.ImagePath))
	_, err = os.Stat(entry.ImagePath)
	require.NoError(t, err)
	_, err = os.Stat(entry.ThumbnailPath)
	require.NoError(t, err)
}

func TestGalleryService_List_NewestFirst(t *testing.T) {
	svc, _ := newTestGallery(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, prompt := range []string{"oldest", "middle", "newest"} {
		_, err := svc.Save(testResult(t, prompt, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	entries, err := svc.List(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "newest", entries[0].Prompt)
	assert.Equal(t, "oldest", entries[2].Prompt)

	n, err := svc.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestGalleryService_List_Pagination(t *testing.T) {
	svc, _ := newTestGallery(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := svc.Save(testResult(t, "p", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	page, err := svc.List(2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestGalleryService_ImageRoundTrip(t *testing.T) {
	svc, _ := newTestGallery(t)

	entries, err := svc.Save(testResult(t, "a red fox", time.Now().UTC()))
	require.NoError(t, err)

	data, err := svc.Image(entries[0].ID)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)

	thumb, err := svc.Thumbnail(entries[0].ID)
	require.NoError(t, err)
	_, err = png.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
}

func TestGalleryService_Delete(t *testing.T) {
	svc, _ := newTestGallery(t)

	entries, err := svc.Save(testResult(t, "a red fox", time.Now().UTC()))
	require.NoError(t, err)
	entry := entries[0]

	require.NoError(t, svc.Delete(entry.ID))

	_, err = os.Stat(entry.ImagePath)
	assert.True(t, os.IsNotExist(err))

	_, err = svc.Get(entry.ID)
	var notFound *repositories.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGalleryService_Delete_Unknown(t *testing.T) {
	svc, _ := newTestGallery(t)

	err := svc.Delete("does-not-exist")
	var notFound *repositories.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "does-not-exist", notFound.ID)
}

func TestGalleryService_Archive(t *testing.T) {
	svc, _ := newTestGallery(t)

	_, err := svc.Save(testResult(t, "first", time.Now().UTC()))
	require.NoError(t, err)
	_, err = svc.Save(testResult(t, "second", time.Now().UTC()))
	require.NoError(t, err)

	data, err := svc.Archive()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGalleryService_SweepOrphans(t *testing.T) {
	svc, dir := newTestGallery(t)

	entries, err := svc.Save(testResult(t, "keep me", time.Now().UTC()))
	require.NoError(t, err)

	orphan := filepath.Join(dir, "2025-12", "orphan.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(orphan), 0755))
	require.NoError(t, os.WriteFile(orphan, []byte("stale"), 0644))

	removed, err := svc.SweepOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))

	// Referenced files survive the sweep.
	_, err = os.Stat(entries[0].ImagePath)
	require.NoError(t, err)
}
