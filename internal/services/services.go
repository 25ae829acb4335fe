package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"imageforge/internal/config"
	"imageforge/internal/inference"
	"imageforge/internal/repositories"
	"imageforge/internal/styles"
)

// Services aggregates the domain services behind the HTTP API.
type Services struct {
	Styles     *styles.Catalog
	Keys       *KeyringService
	Gallery    GalleryService
	Generation GenerationService
}

// NewServices constructs the service container using repositories backed by db.
func NewServices(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Services, error) {
	catalog, err := styles.Load()
	if err != nil {
		return nil, err
	}

	keys := NewKeyringService(cfg.APIKey)
	galleryRepo := repositories.NewGalleryEntryRepository(db)
	gallery := NewGalleryService(galleryRepo, cfg.GalleryDir, logger)
	client := inference.NewClient(cfg, keys, logger)
	generation := NewGenerationService(cfg, client, catalog, gallery, logger)

	return &Services{
		Styles:     catalog,
		Keys:       keys,
		Gallery:    gallery,
		Generation: generation,
	}, nil
}
