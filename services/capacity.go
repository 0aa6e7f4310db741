package services

import (
	"errors"
	"strings"
	"sync"

	"wastewatch/models"
)

var ErrInvalidCapacity = errors.New("plant capacity must be positive")

// CapacityStore holds user-set plant capacities per location in memory.
// Resolution order: override, then the device document, then the default.
type CapacityStore struct {
	mu        sync.RWMutex
	overrides map[string]float64
	fallback  float64
}

func NewCapacityStore(fallback float64) *CapacityStore {
	return &CapacityStore{
		overrides: make(map[string]float64),
		fallback:  fallback,
	}
}

func capacityKey(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// Set overrides the capacity of a location
func (c *CapacityStore) Set(location string, capacity float64) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[capacityKey(location)] = capacity
	return nil
}

// For returns the capacity to use for a device, zero when none is known
func (c *CapacityStore) For(device models.Device) float64 {
	c.mu.RLock()
	override, ok := c.overrides[capacityKey(PlantLocation(device))]
	c.mu.RUnlock()

	if ok {
		return override
	}
	if device.PlantCapacity > 0 {
		return device.PlantCapacity
	}
	if c.fallback > 0 {
		return c.fallback
	}
	return 0
}

// Overrides returns a copy of the user-set capacities
func (c *CapacityStore) Overrides() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]float64, len(c.overrides))
	for k, v := range c.overrides {
		out[k] = v
	}
	return out
}
