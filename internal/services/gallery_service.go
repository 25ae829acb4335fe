package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yargevad/filepathx"
	"go.uber.org/zap"

	"imageforge/internal/imaging"
	"imageforge/internal/models"
	"imageforge/internal/repositories"
)

type GalleryService interface {
	Save(result *models.GenerationResult) ([]models.GalleryEntry, error)
	List(limit, offset int) ([]models.GalleryEntry, error)
	Count() (int64, error)
	Get(id string) (*models.GalleryEntry, error)
	Image(id string) ([]byte, error)
	Thumbnail(id string) ([]byte, error)
	Delete(id string) error
	Archive() ([]byte, error)
	SweepOrphans() (int, error)
}

type galleryService struct {
	repo repositories.GalleryEntryRepository
	dir  string
	log  *zap.Logger
}

func NewGalleryService(repo repositories.GalleryEntryRepository, dir string, logger *zap.Logger) GalleryService {
	return &galleryService{repo: repo, dir: dir, log: logger}
}

// Save writes each generated image to disk and records a gallery row.
// The row is inserted only after the image file is durable, so a crash
// between the two leaves an orphan file, never a dangling row.
func (s *galleryService) Save(result *models.GenerationResult) ([]models.GalleryEntry, error) {
	entries := make([]models.GalleryEntry, 0, len(result.Images))

	for _, img := range result.Images {
		entry, err := s.saveOne(result, img)
		if err != nil {
			return entries, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

func (s *galleryService) saveOne(result *models.GenerationResult, img models.GeneratedImage) (*models.GalleryEntry, error) {
	decoded, _, err := imaging.Decode(img.Data)
	if err != nil {
		return nil, err
	}

	pngData, err := imaging.EncodePNG(decoded)
	if err != nil {
		return nil, err
	}
	thumbData, err := imaging.EncodePNG(imaging.Thumbnail(decoded))
	if err != nil {
		return nil, err
	}

	id, err := s.freshID()
	if err != nil {
		return nil, err
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	monthDir := filepath.Join(s.dir, createdAt.Format("2006-01"))
	if err := os.MkdirAll(monthDir, 0755); err != nil {
		return nil, fmt.Errorf("create gallery dir: %w", err)
	}

	imagePath := filepath.Join(monthDir, id+".png")
	thumbPath := filepath.Join(monthDir, id+"_thumb.png")

	if err := writeFileAtomic(imagePath, pngData); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(thumbPath, thumbData); err != nil {
		os.Remove(imagePath)
		return nil, err
	}

	bounds := decoded.Bounds()
	entry := &models.GalleryEntry{
		ID:            id,
		ImagePath:     imagePath,
		ThumbnailPath: thumbPath,
		Prompt:        result.Request.Prompt,
		Style:         result.Request.Style,
		Model:         img.Model,
		Seed:          img.Seed,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		CreatedAt:     createdAt,
	}

	if err := s.repo.Insert(entry); err != nil {
		os.Remove(imagePath)
		os.Remove(thumbPath)
		return nil, fmt.Errorf("insert gallery entry: %w", err)
	}

	s.log.Info("gallery entry saved",
		zap.String("id", id),
		zap.String("model", img.Model),
		zap.Int64("seed", img.Seed))

	return entry, nil
}

// freshID draws a UUID and regenerates on the off chance of a
// collision with an existing row.
func (s *galleryService) freshID() (string, error) {
	for i := 0; i < 5; i++ {
		id := uuid.NewString()
		exists, err := s.repo.Exists(id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique gallery id")
}

func (s *galleryService) List(limit, offset int) ([]models.GalleryEntry, error) {
	return s.repo.List(limit, offset)
}

func (s *galleryService) Count() (int64, error) {
	return s.repo.Count()
}

func (s *galleryService) Get(id string) (*models.GalleryEntry, error) {
	return s.repo.GetByID(id)
}

func (s *galleryService) Image(id string) ([]byte, error) {
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(entry.ImagePath)
}

func (s *galleryService) Thumbnail(id string) ([]byte, error) {
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(entry.ThumbnailPath)
	if err != nil {
		// Thumbnail sidecars are best effort. Fall back to the full image.
		return os.ReadFile(entry.ImagePath)
	}
	return data, nil
}

// Delete removes the row first, then the files. A missing file is not
// an error; the entry is gone either way.
func (s *galleryService) Delete(id string) error {
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByID(id); err != nil {
		return err
	}

	for _, p := range []string{entry.ImagePath, entry.ThumbnailPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.log.Warn("could not remove gallery file", zap.String("path", p), zap.Error(err))
		}
	}
	return nil
}

// Archive bundles every gallery image into a zip, newest first.
func (s *galleryService) Archive() ([]byte, error) {
	entries, err := s.repo.List(0, 0)
	if err != nil {
		return nil, err
	}

	items := make([]imaging.ArchiveImage, 0, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(e.ImagePath)
		if err != nil {
			s.log.Warn("skipping unreadable gallery image",
				zap.String("id", e.ID), zap.Error(err))
			continue
		}
		items = append(items, imaging.ArchiveImage{
			Data:      data,
			Prompt:    e.Prompt,
			Style:     e.Style,
			Seed:      e.Seed,
			CreatedAt: e.CreatedAt,
		})
	}

	return imaging.BuildArchive(items)
}

// SweepOrphans deletes image files under the gallery directory that no
// row references, and returns how many were removed.
func (s *galleryService) SweepOrphans() (int, error) {
	entries, err := s.repo.List(0, 0)
	if err != nil {
		return 0, err
	}

	known := make(map[string]struct{}, len(entries)*2)
	for _, e := range entries {
		known[filepath.Clean(e.ImagePath)] = struct{}{}
		known[filepath.Clean(e.ThumbnailPath)] = struct{}{}
	}

	paths, err := filepathx.Glob(filepath.Join(s.dir, "**", "*.png"))
	if err != nil {
		return 0, fmt.Errorf("scan gallery dir: %w", err)
	}

	removed := 0
	for _, p := range paths {
		if _, ok := known[filepath.Clean(p)]; ok {
			continue
		}
		if err := os.Remove(p); err != nil {
			s.log.Warn("could not remove orphan file", zap.String("path", p), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("swept orphan gallery files", zap.Int("removed", removed))
	}
	return removed, nil
}

// writeFileAtomic writes to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), ".png")+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
