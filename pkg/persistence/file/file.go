// Package file provides a file-backed persistence implementation. State is
// held in memory and written to a single JSON document after every change.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/persistence/memory"
)

// StateFile is the document name inside the root directory.
const StateFile = "conduit.json"

var ErrMissingRoot = errors.New("file persistence requires a root directory")

// Persistence implements persistence.Persistence on top of the memory store.
type Persistence struct {
	root   string
	path   string
	logger *slog.Logger
	mem    *memory.Persistence
	mu     sync.Mutex
}

// NewPersistence opens the store rooted at root, creating the directory when
// needed and loading any previously saved state. A file:// prefix is accepted.
func NewPersistence(_ context.Context, logger *slog.Logger, root string) (*Persistence, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")
	if cleanRoot == "" {
		return nil, ErrMissingRoot
	}

	err := os.MkdirAll(cleanRoot, 0o700)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	p := &Persistence{
		root:   cleanRoot,
		path:   filepath.Join(cleanRoot, StateFile),
		logger: logger.With("module", "file_persistence"),
		mem:    memory.NewPersistence(),
	}

	err = p.load()
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Persistence) NodeDefinitionRepository() persistence.NodeDefinitionRepository {
	return &definitionRepository{NodeDefinitionRepository: p.mem.NodeDefinitionRepository(), p: p}
}

func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return &connectionRepository{ConnectionRepository: p.mem.ConnectionRepository(), p: p}
}

func (p *Persistence) ScenarioRepository() persistence.ScenarioRepository {
	return &scenarioRepository{ScenarioRepository: p.mem.ScenarioRepository(), p: p}
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return &logRepository{LogRepository: p.mem.LogRepository(), p: p}
}

func (p *Persistence) TokenRepository() persistence.TokenRepository {
	return &tokenRepository{TokenRepository: p.mem.TokenRepository(), p: p}
}

// HealthCheck verifies the root directory still exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("file persistence unavailable: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("file persistence root %s is not a directory", p.root)
	}

	return nil
}

// Close flushes the current state.
func (p *Persistence) Close(_ context.Context) error {
	return p.save()
}

func (p *Persistence) load() error {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p.path, err)
	}

	var doc document

	err = json.Unmarshal(b, &doc)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", p.path, err)
	}

	p.mem.Restore(doc.snapshot())
	p.logger.Info("Loaded persisted state",
		"path", p.path,
		"connections", len(doc.Connections),
		"scenarios", len(doc.Scenarios),
		"logs", len(doc.Logs))

	return nil
}

// save writes the whole state to a temp file and renames it over the
// document, so readers never observe a partial write.
func (p *Persistence) save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := json.MarshalIndent(newDocument(p.mem.Snapshot()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(p.root, StateFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	_, err = tmp.Write(b)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write state: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	err = os.Chmod(tmp.Name(), 0o600)
	if err != nil {
		return fmt.Errorf("failed to set state permissions: %w", err)
	}

	err = os.Rename(tmp.Name(), p.path)
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", p.path, err)
	}

	return nil
}

// document is the on-disk layout. Connections and tokens carry the fields
// the public models keep out of JSON.
type document struct {
	Definitions []*models.IntegrationNodeDefinition `json:"definitions"`
	Connections []connectionRecord                  `json:"connections"`
	Scenarios   []*models.Scenario                  `json:"scenarios"`
	Logs        []*models.AutomationLogEntry        `json:"logs"`
	Tokens      []tokenRecord                       `json:"tokens"`
}

type connectionRecord struct {
	*models.ConnectionDefinition

	Secrets []byte `json:"secrets,omitempty"`
}

type tokenRecord struct {
	*models.OAuth2Token

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func newDocument(s memory.Snapshot) document {
	doc := document{
		Definitions: s.Definitions,
		Connections: make([]connectionRecord, 0, len(s.Connections)),
		Scenarios:   s.Scenarios,
		Logs:        s.Logs,
		Tokens:      make([]tokenRecord, 0, len(s.Tokens)),
	}

	for _, c := range s.Connections {
		doc.Connections = append(doc.Connections, connectionRecord{ConnectionDefinition: c, Secrets: c.Secrets})
	}

	for _, t := range s.Tokens {
		doc.Tokens = append(doc.Tokens, tokenRecord{OAuth2Token: t, AccessToken: t.AccessToken, RefreshToken: t.RefreshToken})
	}

	return doc
}

func (d document) snapshot() memory.Snapshot {
	s := memory.Snapshot{
		Definitions: d.Definitions,
		Scenarios:   d.Scenarios,
		Logs:        d.Logs,
	}

	for _, rec := range d.Connections {
		if rec.ConnectionDefinition == nil {
			continue
		}

		rec.ConnectionDefinition.Secrets = rec.Secrets
		s.Connections = append(s.Connections, rec.ConnectionDefinition)
	}

	for _, rec := range d.Tokens {
		if rec.OAuth2Token == nil {
			continue
		}

		rec.OAuth2Token.AccessToken = rec.AccessToken
		rec.OAuth2Token.RefreshToken = rec.RefreshToken
		s.Tokens = append(s.Tokens, rec.OAuth2Token)
	}

	return s
}
