package image

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// ImageFileNotFoundError occurs when the module file referenced in a manifest doesn't exist.
type ImageFileNotFoundError struct {
	ManifestPath string
	File         string
}

func (e *ImageFileNotFoundError) Error() string {
	return fmt.Sprintf("module file '%s' not found (referenced in manifest '%s')",
		e.File, e.ManifestPath)
}

// ImageLoadError occurs when image loading fails.
type ImageLoadError struct {
	ImageName string
	Err       error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("failed to load image '%s': %v", e.ImageName, e.Err)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// ImageNotFoundError occurs when an image is not found in the registry.
type ImageNotFoundError struct {
	ImageName string
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image '%s' not found", e.ImageName)
}

// ImageAlreadyRegisteredError occurs when attempting to register a duplicate image.
type ImageAlreadyRegisteredError struct {
	ImageName string
}

func (e *ImageAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("image '%s' is already registered", e.ImageName)
}

// NoImagesFoundError occurs when no images are found in the configured paths.
type NoImagesFoundError struct {
	Paths []string
}

func (e *NoImagesFoundError) Error() string {
	return fmt.Sprintf("no images found in paths: %v", e.Paths)
}
