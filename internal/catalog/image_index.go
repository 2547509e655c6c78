package catalog

import (
	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/models"
)

// ImageIndex maps a property ID to its images in backend response order.
type ImageIndex map[string][]models.PropertyImage

// For returns the images of a property, or an empty slice when it has none.
func (idx ImageIndex) For(propertyID string) []models.PropertyImage {
	if images, ok := idx[propertyID]; ok {
		return images
	}
	return []models.PropertyImage{}
}

// Count returns the total number of images across all properties.
func (idx ImageIndex) Count() int {
	n := 0
	for _, images := range idx {
		n += len(images)
	}
	return n
}

// applyPolicy returns the images that may be displayed under policy.
// The result is never nil and keeps the input order.
func applyPolicy(policy config.ImagePolicy, images []models.PropertyImage) []models.PropertyImage {
	out := make([]models.PropertyImage, 0, len(images))
	for _, img := range images {
		if policy == config.ImagePolicyAll || img.Enabled {
			out = append(out, img)
		}
	}
	return out
}
