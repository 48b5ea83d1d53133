package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

type definitionRepository struct {
	p *Persistence
}

func (r *definitionRepository) GetDefinition(_ context.Context, identifier string) (*models.IntegrationNodeDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	def, ok := r.p.definitions[identifier]
	if !ok {
		return nil, persistence.NewRecordError("GetDefinition", "node definition", identifier, persistence.ErrNodeDefinitionNotFound)
	}

	return def.Clone(), nil
}

func (r *definitionRepository) InsertDefinition(_ context.Context, definition *models.IntegrationNodeDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.definitions[definition.Identifier]; ok {
		return persistence.NewRecordError("InsertDefinition", "node definition", definition.Identifier, persistence.ErrAlreadyExists)
	}

	r.p.definitions[definition.Identifier] = definition.Clone()

	return nil
}

func (r *definitionRepository) PatchDefinition(_ context.Context, identifier string, patch persistence.NodeDefinitionPatch) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	def, ok := r.p.definitions[identifier]
	if !ok {
		return persistence.NewRecordError("PatchDefinition", "node definition", identifier, persistence.ErrNodeDefinitionNotFound)
	}

	updated := def.Clone()
	ApplyDefinitionPatch(updated, patch)
	updated.UpdatedAt = time.Now().UTC()
	r.p.definitions[identifier] = updated

	return nil
}

func (r *definitionRepository) ListDefinitions(_ context.Context, filter persistence.NodeDefinitionFilter) ([]*models.IntegrationNodeDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	result := make([]*models.IntegrationNodeDefinition, 0, len(r.p.definitions))

	for _, def := range r.p.definitions {
		if def.Deprecated && !filter.IncludeDeprecated {
			continue
		}

		if filter.Category != "" && def.Category != filter.Category {
			continue
		}

		if filter.IntegrationType != "" && def.IntegrationType != filter.IntegrationType {
			continue
		}

		result = append(result, def.Clone())
	}

	slices.SortFunc(result, func(a, b *models.IntegrationNodeDefinition) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})

	return result, nil
}

// ApplyDefinitionPatch copies the set fields of patch onto def.
func ApplyDefinitionPatch(def *models.IntegrationNodeDefinition, patch persistence.NodeDefinitionPatch) {
	if patch.Name != nil {
		def.Name = *patch.Name
	}

	if patch.Description != nil {
		def.Description = *patch.Description
	}

	if patch.Category != nil {
		def.Category = *patch.Category
	}

	if patch.IntegrationType != nil {
		def.IntegrationType = *patch.IntegrationType
	}

	if patch.Version != nil {
		def.Version = *patch.Version
	}

	if patch.InputSchema != nil {
		def.InputSchema = slices.Clone(patch.InputSchema)
	}

	if patch.OutputSchema != nil {
		def.OutputSchema = slices.Clone(patch.OutputSchema)
	}

	if patch.ConfigSchema != nil {
		def.ConfigSchema = slices.Clone(patch.ConfigSchema)
	}

	if patch.UIConfig != nil {
		def.UIConfig = models.CloneMap(patch.UIConfig)
	}

	if patch.Tags != nil {
		def.Tags = slices.Clone(patch.Tags)
	}

	if patch.Deprecated != nil {
		def.Deprecated = *patch.Deprecated
	}
}
