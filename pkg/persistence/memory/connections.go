package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

type connectionRepository struct {
	p *Persistence
}

func (r *connectionRepository) GetConnection(_ context.Context, id string) (*models.ConnectionDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	conn, ok := r.p.connections[id]
	if !ok {
		return nil, persistence.NewRecordError("GetConnection", "connection", id, persistence.ErrConnectionNotFound)
	}

	return conn.Clone(), nil
}

func (r *connectionRepository) InsertConnection(_ context.Context, connection *models.ConnectionDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.connections[connection.ID]; ok {
		return persistence.NewRecordError("InsertConnection", "connection", connection.ID, persistence.ErrAlreadyExists)
	}

	r.p.connections[connection.ID] = connection.Clone()

	return nil
}

func (r *connectionRepository) PatchConnection(_ context.Context, id string, patch persistence.ConnectionPatch) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	conn, ok := r.p.connections[id]
	if !ok {
		return persistence.NewRecordError("PatchConnection", "connection", id, persistence.ErrConnectionNotFound)
	}

	updated := conn.Clone()
	ApplyConnectionPatch(updated, patch)
	updated.UpdatedAt = time.Now().UTC()
	r.p.connections[id] = updated

	return nil
}

func (r *connectionRepository) DeleteConnection(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.connections[id]; !ok {
		return persistence.NewRecordError("DeleteConnection", "connection", id, persistence.ErrConnectionNotFound)
	}

	delete(r.p.connections, id)
	delete(r.p.tokens, id)

	return nil
}

func (r *connectionRepository) ListConnectionsByOwner(_ context.Context, ownerID string) ([]*models.ConnectionDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	result := make([]*models.ConnectionDefinition, 0)

	for _, conn := range r.p.connections {
		if ownerID != "" && conn.OwnerID != ownerID {
			continue
		}

		result = append(result, conn.Clone())
	}

	slices.SortFunc(result, func(a, b *models.ConnectionDefinition) int {
		return strings.Compare(a.ID, b.ID)
	})

	return result, nil
}

// ApplyConnectionPatch copies the set fields of patch onto conn.
func ApplyConnectionPatch(conn *models.ConnectionDefinition, patch persistence.ConnectionPatch) {
	if patch.Name != nil {
		conn.Name = *patch.Name
	}

	if patch.Status != nil {
		conn.Status = *patch.Status
	}

	if patch.Config != nil {
		conn.Config = models.CloneMap(patch.Config)
	}

	if patch.Metadata != nil {
		conn.Metadata = models.CloneMap(patch.Metadata)
	}

	if patch.Secrets != nil {
		conn.Secrets = slices.Clone(patch.Secrets)
	}

	if patch.LastError != nil {
		conn.LastError = *patch.LastError
	}
}
