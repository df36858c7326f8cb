package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
)

// Supported providers. "google" models are served through Gemini's
// OpenAI-compatible endpoint.
const (
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderGoogle           = "google"
	ProviderOpenAICompatible = "openai-compatible"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// ModelOptions holds per-model generation defaults.
type ModelOptions struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// ModelEntry is one entry of the model catalog.
type ModelEntry struct {
	ModelID     string  `yaml:"model_id" json:"model_id"`
	Name        string  `yaml:"name" json:"name"`
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	APIKey      string  `yaml:"api_key" json:"-"`
	APIBase     string  `yaml:"api_base" json:"api_base,omitempty"`
	APIVersion  string  `yaml:"api_version" json:"api_version,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Timeout     int     `yaml:"timeout" json:"timeout,omitempty"`
	MaxRetries  int     `yaml:"max_retries" json:"max_retries,omitempty"`
}

// Options returns the generation defaults for this entry.
func (e ModelEntry) Options() ModelOptions {
	return ModelOptions{Temperature: e.Temperature, MaxTokens: e.MaxTokens}
}

type catalogFile struct {
	DefaultModel string       `yaml:"default_model"`
	Models       []ModelEntry `yaml:"models"`
}

// ChangeFunc is notified after the active model changes.
type ChangeFunc func(modelID string)

// Manager owns the model catalog and the active model selection. All methods
// are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	path      string
	models    map[string]ModelEntry
	active    string
	clients   map[string]Client
	callbacks []ChangeFunc
	logger    logging.Logger
}

// NewManager loads the catalog at path and selects the configured default
// model, or the first valid entry when no default is set.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path:    path,
		models:  make(map[string]ModelEntry),
		clients: make(map[string]Client),
		logger:  logging.NewComponentLogger("llm.manager"),
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func validateEntry(e ModelEntry) error {
	if e.ModelID == "" {
		return fmt.Errorf("model entry missing model_id")
	}
	if e.Model == "" {
		return fmt.Errorf("model %s: model is required", e.ModelID)
	}
	if e.APIKey == "" {
		return fmt.Errorf("model %s: api_key is required", e.ModelID)
	}
	switch e.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	case ProviderOpenAICompatible:
		if e.APIBase == "" {
			return fmt.Errorf("model %s: api_base is required for openai-compatible", e.ModelID)
		}
	default:
		return fmt.Errorf("model %s: unknown provider %q", e.ModelID, e.Provider)
	}
	return nil
}

// Reload re-reads the catalog file. Invalid entries are skipped with a
// warning. The active model is preserved when it still exists.
func (m *Manager) Reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read model catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse model catalog: %w", err)
	}

	models := make(map[string]ModelEntry)
	var order []string
	for _, e := range file.Models {
		// API keys may reference environment variables.
		e.APIKey = strings.TrimSpace(os.ExpandEnv(e.APIKey))
		e.APIBase = strings.TrimSpace(os.ExpandEnv(e.APIBase))
		if err := validateEntry(e); err != nil {
			m.logger.Warn("skipping model entry: %v", err)
			continue
		}
		if _, dup := models[e.ModelID]; dup {
			m.logger.Warn("duplicate model_id %s, keeping first", e.ModelID)
			continue
		}
		models[e.ModelID] = e
		order = append(order, e.ModelID)
	}
	if len(models) == 0 {
		return fmt.Errorf("model catalog %s has no valid entries", m.path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = models
	m.clients = make(map[string]Client)
	if _, ok := models[m.active]; !ok {
		if _, ok := models[file.DefaultModel]; ok {
			m.active = file.DefaultModel
		} else {
			m.active = order[0]
		}
	}
	m.logger.Info("loaded %d models, active=%s", len(models), m.active)
	return nil
}

// List returns all catalog entries sorted by model_id.
func (m *Manager) List() []ModelEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ModelEntry, 0, len(m.models))
	for _, e := range m.models {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Get returns the entry for modelID.
func (m *Manager) Get(modelID string) (ModelEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.models[modelID]
	if !ok {
		return ModelEntry{}, fmt.Errorf("unknown model %q", modelID)
	}
	return e, nil
}

// Active returns the currently selected model id.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Switch changes the active model and notifies change callbacks.
func (m *Manager) Switch(modelID string) error {
	m.mu.Lock()
	if _, ok := m.models[modelID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown model %q", modelID)
	}
	m.active = modelID
	callbacks := append([]ChangeFunc(nil), m.callbacks...)
	m.mu.Unlock()

	m.logger.Info("active model switched to %s", modelID)
	for _, cb := range callbacks {
		cb(modelID)
	}
	return nil
}

// Add registers a new model entry at runtime.
func (m *Manager) Add(e ModelEntry) error {
	e.APIKey = strings.TrimSpace(os.ExpandEnv(e.APIKey))
	if err := validateEntry(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[e.ModelID]; ok {
		return fmt.Errorf("model %q already exists", e.ModelID)
	}
	m.models[e.ModelID] = e
	return nil
}

// Remove deletes a model entry. The active model cannot be removed.
func (m *Manager) Remove(modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[modelID]; !ok {
		return fmt.Errorf("unknown model %q", modelID)
	}
	if modelID == m.active {
		return fmt.Errorf("cannot remove active model %q", modelID)
	}
	delete(m.models, modelID)
	delete(m.clients, modelID)
	return nil
}

// OnChange registers a callback invoked after every successful Switch.
func (m *Manager) OnChange(cb ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// ClientFor returns a provider client for modelID, constructing and caching
// it on first use. An empty modelID selects the active model.
func (m *Manager) ClientFor(modelID string) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if modelID == "" {
		modelID = m.active
	}
	if c, ok := m.clients[modelID]; ok {
		return c, nil
	}
	e, ok := m.models[modelID]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelID)
	}

	var (
		client Client
		err    error
	)
	switch e.Provider {
	case ProviderAnthropic:
		client, err = NewAnthropicClient(e)
	case ProviderGoogle:
		if e.APIBase == "" {
			e.APIBase = defaultGeminiBaseURL
		}
		client, err = NewOpenAIClient(e)
	default:
		client, err = NewOpenAIClient(e)
	}
	if err != nil {
		return nil, err
	}
	m.clients[modelID] = client
	return client, nil
}
