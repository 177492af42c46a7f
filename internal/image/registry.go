package image

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded images.
type Registry struct {
	sync.RWMutex
	images map[string]*Image   // name -> image
	byABI  map[string][]*Image // abi -> images
	logger *zap.Logger
}

// NewRegistry creates a new image registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		images: make(map[string]*Image),
		byABI:  make(map[string][]*Image),
		logger: logger.With(zap.String("component", "image-registry")),
	}
}

// Register adds an image to the registry.
func (r *Registry) Register(img *Image) error {
	r.Lock()
	defer r.Unlock()

	name := img.Manifest.Name

	// Check for duplicates
	if _, exists := r.images[name]; exists {
		return &ImageAlreadyRegisteredError{ImageName: name}
	}

	r.images[name] = img

	// Index by abi
	abi := img.Manifest.ABI
	r.byABI[abi] = append(r.byABI[abi], img)

	r.logger.Info("Image registered",
		zap.String("name", name),
		zap.String("abi", abi),
	)

	return nil
}

// Get retrieves an image by name.
func (r *Registry) Get(name string) (*Image, bool) {
	r.RLock()
	defer r.RUnlock()

	img, ok := r.images[name]
	return img, ok
}

// LookupByABI finds images implementing a calling convention.
func (r *Registry) LookupByABI(abi string) []*Image {
	r.RLock()
	defer r.RUnlock()

	images, ok := r.byABI[abi]
	if !ok || len(images) == 0 {
		return []*Image{}
	}
	// Return copy to avoid race conditions
	result := make([]*Image, len(images))
	copy(result, images)
	return result
}

// List returns all registered images sorted by name.
func (r *Registry) List() []*Image {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Image, 0, len(r.images))
	for _, img := range r.images {
		result = append(result, img)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Unregister removes an image from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	img, ok := r.images[name]
	if !ok {
		return
	}

	// Remove from abi index
	abi := img.Manifest.ABI
	images := r.byABI[abi]
	for i, candidate := range images {
		if candidate.Manifest.Name == name {
			r.byABI[abi] = append(images[:i], images[i+1:]...)
			break
		}
	}

	delete(r.images, name)

	r.logger.Info("Image unregistered", zap.String("name", name))
}

// Count returns the number of registered images.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.images)
}
