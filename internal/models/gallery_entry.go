package models

import "time"

// GalleryEntry is the metadata row for one stored image. The image and
// thumbnail files live under the gallery directory; the row is only
// created after the files are durable on disk.
type GalleryEntry struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	ImagePath     string `gorm:"size:512;not null" json:"image_path"`
	ThumbnailPath string `gorm:"size:512" json:"thumbnail_path"`
	Prompt        string `gorm:"type:text;not null" json:"prompt"`
	Style         string `gorm:"size:64;not null" json:"style"`
	Model         string `gorm:"size:128" json:"model"`
	Seed          int64  `json:"seed"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
