// Package schemasource discovers schema descriptors from live databases so
// they can be fed through the normal schema import.
package schemasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Discoverer reads tables, views, columns and view dependencies from a
// database and returns them as import descriptors.
type Discoverer interface {
	Discover(ctx context.Context) ([]models.SchemaDescriptor, error)
	Close() error
}

// SourceInfo describes a registered source type.
type SourceInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "mysql", "sqlite"
	DisplayName string `json:"display_name"` // "PostgreSQL"
	Description string `json:"description"`
}

// Factory builds a Discoverer from a generic config map.
type Factory func(ctx context.Context, config map[string]any, logger *zap.Logger) (Discoverer, error)

// Registration pairs source info with its factory.
type Registration struct {
	Info    SourceInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each source's init() function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredSources returns info for all registered sources, sorted by type.
func RegisteredSources() []SourceInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SourceInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if a source type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}

// Open creates a Discoverer for sourceType.
func Open(ctx context.Context, sourceType string, config map[string]any, logger *zap.Logger) (Discoverer, error) {
	registryMu.RLock()
	reg, ok := registry[sourceType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedSourceType, sourceType)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return reg.Factory(ctx, config, logger)
}
