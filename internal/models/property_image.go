package models

import (
	"errors"
	"strings"
)

// PropertyImage represents an image associated with a property.
// File is either a URL or an embedded data URI.
type PropertyImage struct {
	ID         string `json:"id"`
	IDProperty string `json:"idProperty"`
	File       string `json:"file"`
	Enabled    bool   `json:"enabled"`
}

// PropertyImageDraft is the payload of POST /PropertyImages.
type PropertyImageDraft struct {
	IDProperty string `json:"idProperty"`
	File       string `json:"file"`
	Enabled    bool   `json:"enabled"`
}

// Validate checks the draft before it is sent to the backend.
func (d PropertyImageDraft) Validate() error {
	var errs []error
	if strings.TrimSpace(d.IDProperty) == "" {
		errs = append(errs, errors.New("idProperty is required"))
	}
	if strings.TrimSpace(d.File) == "" {
		errs = append(errs, errors.New("file is required"))
	}
	return errors.Join(errs...)
}

// IsEmbedded reports whether File carries inline image data rather than a URL.
func (img *PropertyImage) IsEmbedded() bool {
	return strings.HasPrefix(img.File, "data:")
}
