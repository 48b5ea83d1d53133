package file

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// The repositories below read straight from memory and save after every
// successful write.

type definitionRepository struct {
	persistence.NodeDefinitionRepository
	p *Persistence
}

func (r *definitionRepository) InsertDefinition(ctx context.Context, definition *models.IntegrationNodeDefinition) error {
	err := r.NodeDefinitionRepository.InsertDefinition(ctx, definition)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *definitionRepository) PatchDefinition(ctx context.Context, identifier string, patch persistence.NodeDefinitionPatch) error {
	err := r.NodeDefinitionRepository.PatchDefinition(ctx, identifier, patch)
	if err != nil {
		return err
	}

	return r.p.save()
}

type connectionRepository struct {
	persistence.ConnectionRepository
	p *Persistence
}

func (r *connectionRepository) InsertConnection(ctx context.Context, connection *models.ConnectionDefinition) error {
	err := r.ConnectionRepository.InsertConnection(ctx, connection)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *connectionRepository) PatchConnection(ctx context.Context, id string, patch persistence.ConnectionPatch) error {
	err := r.ConnectionRepository.PatchConnection(ctx, id, patch)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *connectionRepository) DeleteConnection(ctx context.Context, id string) error {
	err := r.ConnectionRepository.DeleteConnection(ctx, id)
	if err != nil {
		return err
	}

	return r.p.save()
}

type scenarioRepository struct {
	persistence.ScenarioRepository
	p *Persistence
}

func (r *scenarioRepository) InsertScenario(ctx context.Context, scenario *models.Scenario) error {
	err := r.ScenarioRepository.InsertScenario(ctx, scenario)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *scenarioRepository) UpdateScenario(ctx context.Context, scenario *models.Scenario) error {
	err := r.ScenarioRepository.UpdateScenario(ctx, scenario)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *scenarioRepository) PatchScenarioStatus(ctx context.Context, id string, status models.ScenarioStatus) error {
	err := r.ScenarioRepository.PatchScenarioStatus(ctx, id, status)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *scenarioRepository) DeleteScenario(ctx context.Context, id string) error {
	err := r.ScenarioRepository.DeleteScenario(ctx, id)
	if err != nil {
		return err
	}

	return r.p.save()
}

type logRepository struct {
	persistence.LogRepository
	p *Persistence
}

func (r *logRepository) InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error {
	err := r.LogRepository.InsertLogEntry(ctx, entry)
	if err != nil {
		return err
	}

	return r.p.save()
}

type tokenRepository struct {
	persistence.TokenRepository
	p *Persistence
}

func (r *tokenRepository) SaveToken(ctx context.Context, token *models.OAuth2Token) error {
	err := r.TokenRepository.SaveToken(ctx, token)
	if err != nil {
		return err
	}

	return r.p.save()
}

func (r *tokenRepository) DeleteToken(ctx context.Context, connectionID string) error {
	err := r.TokenRepository.DeleteToken(ctx, connectionID)
	if err != nil {
		return err
	}

	return r.p.save()
}
