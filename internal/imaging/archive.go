package imaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// ArchiveImage is one image plus the metadata recorded alongside it in
// the downloadable archive.
type ArchiveImage struct {
	Data      []byte
	Prompt    string
	Style     string
	Seed      int64
	CreatedAt time.Time
}

const (
	archivePromptChars = 30
	metadataFileName   = "generation_info.txt"
)

// BuildArchive packages images into a single zip blob, preserving input
// order. Empty input yields a valid empty archive.
func BuildArchive(items []ArchiveImage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, item := range items {
		name := fmt.Sprintf("%02d_%s.png", i+1, archiveFileStem(item.Prompt))
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", name, err)
		}
		if _, err := w.Write(item.Data); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", name, err)
		}
	}

	if len(items) > 0 {
		w, err := zw.Create(metadataFileName)
		if err != nil {
			return nil, fmt.Errorf("create archive metadata: %w", err)
		}
		if _, err := w.Write([]byte(archiveMetadata(items))); err != nil {
			return nil, fmt.Errorf("write archive metadata: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// archiveFileStem derives a filesystem-safe stem from the prompt.
func archiveFileStem(prompt string) string {
	if len(prompt) > archivePromptChars {
		prompt = prompt[:archivePromptChars]
	}

	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-':
			return r
		default:
			return '_'
		}
	}, prompt)

	for strings.Contains(stem, "__") {
		stem = strings.ReplaceAll(stem, "__", "_")
	}
	stem = strings.Trim(stem, "_")
	if stem == "" {
		stem = "image"
	}
	return stem
}

func archiveMetadata(items []ArchiveImage) string {
	var b strings.Builder
	b.WriteString("ImageForge - Generation Info\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, item := range items {
		fmt.Fprintf(&b, "Image %d:\n", i+1)
		fmt.Fprintf(&b, "  Prompt: %s\n", item.Prompt)
		fmt.Fprintf(&b, "  Style: %s\n", item.Style)
		fmt.Fprintf(&b, "  Seed: %d\n", item.Seed)
		fmt.Fprintf(&b, "  Created: %s\n\n", item.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
