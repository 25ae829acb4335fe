package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"imageforge/internal/models"
)

// NotFoundError reports a gallery id with no matching row.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gallery entry %s not found", e.ID)
}

type GalleryEntryRepository interface {
	Insert(entry *models.GalleryEntry) error
	List(limit, offset int) ([]models.GalleryEntry, error)
	Count() (int64, error)
	GetByID(id string) (*models.GalleryEntry, error)
	Exists(id string) (bool, error)
	DeleteByID(id string) error
}

type galleryEntryRepository struct {
	db *gorm.DB
}

func NewGalleryEntryRepository(db *gorm.DB) GalleryEntryRepository {
	return &galleryEntryRepository{db: db}
}

func (r *galleryEntryRepository) Insert(entry *models.GalleryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("entry ID is required")
	}
	if entry.ImagePath == "" {
		return fmt.Errorf("entry image path is required")
	}
	return r.db.Create(entry).Error
}

// List returns entries newest first. A limit of 0 means no limit.
func (r *galleryEntryRepository) List(limit, offset int) ([]models.GalleryEntry, error) {
	var entries []models.GalleryEntry
	q := r.db.Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *galleryEntryRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&models.GalleryEntry{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *galleryEntryRepository) GetByID(id string) (*models.GalleryEntry, error) {
	var entry models.GalleryEntry
	res := r.db.Where("id = ?", id).Take(&entry)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, res.Error
	}
	return &entry, nil
}

func (r *galleryEntryRepository) Exists(id string) (bool, error) {
	var n int64
	if err := r.db.Model(&models.GalleryEntry{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *galleryEntryRepository) DeleteByID(id string) error {
	res := r.db.Where("id = ?", id).Delete(&models.GalleryEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}
