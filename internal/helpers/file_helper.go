package helpers

import (
	"fmt"
	"path/filepath"
	"strings"
)

type UploadConfig struct {
	MaxSizeBytes      int64
	AllowedMimeTypes  []string
	AllowedExtensions []string
}

var DefaultProofImageConfig = UploadConfig{
	MaxSizeBytes: 8 * 1024 * 1024, // 8MB
	AllowedMimeTypes: []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
	},
	AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
}

// CheckProofImage decides whether a chat attachment can serve as proof of
// payment. Attachments without a content type fall back to the file
// extension.
func CheckProofImage(filename, contentType string, size int64, configs ...UploadConfig) error {
	config := DefaultProofImageConfig
	if len(configs) > 0 {
		config = configs[0]
	}

	if config.MaxSizeBytes > 0 && size > config.MaxSizeBytes {
		return fmt.Errorf("file size exceeds maximum limit of %d MB", config.MaxSizeBytes/(1024*1024))
	}

	mimeType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if mimeType != "" {
		for _, allowedType := range config.AllowedMimeTypes {
			if mimeType == allowedType {
				return nil
			}
		}
		return fmt.Errorf("invalid file type. Allowed types: %v", config.AllowedMimeTypes)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowedExt := range config.AllowedExtensions {
		if ext == allowedExt {
			return nil
		}
	}
	return fmt.Errorf("invalid file extension %q", ext)
}
