package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const testCatalog = `
default_model: gpt
models:
  - model_id: gpt
    name: GPT-4o
    provider: openai
    model: gpt-4o
    api_key: sk-test
    temperature: 0.7
    max_tokens: 4096
  - model_id: claude
    name: Claude
    provider: anthropic
    model: claude-sonnet-4
    api_key: sk-ant-test
  - model_id: broken
    provider: openai
    model: gpt-4o
`

func TestManagerLoadsCatalog(t *testing.T) {
	m, err := NewManager(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	assert.Equal(t, "gpt", m.Active())

	// Entry without api_key is skipped, not fatal.
	models := m.List()
	require.Len(t, models, 2)
	assert.Equal(t, "claude", models[0].ModelID)
	assert.Equal(t, "gpt", models[1].ModelID)
}

func TestManagerExpandsEnvAPIKey(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-from-env")
	m, err := NewManager(writeCatalog(t, `
models:
  - model_id: envkey
    provider: openai
    model: gpt-4o
    api_key: ${TEST_LLM_KEY}
`))
	require.NoError(t, err)

	e, err := m.Get("envkey")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", e.APIKey)
}

func TestManagerSwitchNotifiesCallbacks(t *testing.T) {
	m, err := NewManager(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	var got []string
	m.OnChange(func(id string) { got = append(got, id) })

	require.NoError(t, m.Switch("claude"))
	assert.Equal(t, "claude", m.Active())
	assert.Equal(t, []string{"claude"}, got)

	err = m.Switch("nope")
	assert.Error(t, err)
	assert.Equal(t, "claude", m.Active())
	assert.Len(t, got, 1)
}

func TestManagerAddRemove(t *testing.T) {
	m, err := NewManager(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	err = m.Add(ModelEntry{
		ModelID:  "compat",
		Provider: ProviderOpenAICompatible,
		Model:    "qwen-max",
		APIKey:   "sk-x",
		APIBase:  "https://example.com/v1",
	})
	require.NoError(t, err)

	// openai-compatible without api_base is rejected.
	err = m.Add(ModelEntry{ModelID: "compat2", Provider: ProviderOpenAICompatible, Model: "m", APIKey: "k"})
	assert.Error(t, err)

	// Duplicate ids are rejected.
	err = m.Add(ModelEntry{ModelID: "compat", Provider: ProviderOpenAI, Model: "m", APIKey: "k"})
	assert.Error(t, err)

	require.NoError(t, m.Remove("compat"))
	assert.Error(t, m.Remove("gpt"), "active model must not be removable")
}

func TestManagerClientFor(t *testing.T) {
	m, err := NewManager(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	c1, err := m.ClientFor("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c1.Model())

	// Cached on second lookup.
	c2, err := m.ClientFor("gpt")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	cl, err := m.ClientFor("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", cl.Model())

	_, err = m.ClientFor("missing")
	assert.Error(t, err)
}

func TestManagerReloadPreservesActive(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Switch("claude"))

	require.NoError(t, m.Reload())
	assert.Equal(t, "claude", m.Active())
}
