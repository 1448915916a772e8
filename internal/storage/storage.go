package storage

import (
	"sync"

	"github.com/biofoundry/plate-planner/internal/layout"
)

// defaultSlots is the CFPS pilot configuration: four slots of paired
// source wells.
var defaultSlots = [][]int{{2, 18}, {3, 19}, {4, 20}, {5, 21}}

// Storage provides access to the active combination spec and plate
// geometry used by the planner.
type Storage interface {
	GetSpec() (layout.Spec, error)
	SetSpec(spec layout.Spec) error
	GetGeometry() (layout.Geometry, error)
	SetGeometry(geom layout.Geometry) error
}

// MemoryStorage keeps the spec and geometry in-memory and guards access
// with a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	spec     layout.Spec
	geometry layout.Geometry
}

// NewMemoryStorage initialises storage with copies of the defaults.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		spec:     DefaultSpec(),
		geometry: layout.DefaultGeometry(),
	}
}

// DefaultSpec returns a copy of the default combination spec.
func DefaultSpec() layout.Spec {
	return layout.Spec{Slots: defaultSlots}.Clone()
}

// GetSpec returns a defensive copy of the active spec.
func (s *MemoryStorage) GetSpec() (layout.Spec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.spec.Clone(), nil
}

// SetSpec validates and stores the provided spec. Slot order is
// preserved: it determines the enumeration order of the product.
func (s *MemoryStorage) SetSpec(spec layout.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.spec = spec.Clone()
	s.mu.Unlock()

	return nil
}

// GetGeometry returns a defensive copy of the active plate geometry.
func (s *MemoryStorage) GetGeometry() (layout.Geometry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.geometry.Clone(), nil
}

// SetGeometry validates and stores the provided plate geometry.
func (s *MemoryStorage) SetGeometry(geom layout.Geometry) error {
	if err := geom.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.geometry = geom.Clone()
	s.mu.Unlock()

	return nil
}
