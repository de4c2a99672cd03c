package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := New("be helpful")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 1, cfg.MaxRounds)
	assert.True(t, cfg.ParallelTools)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, Source{TopK: 2, MaxChars: 500}, cfg.Arxiv)
	assert.False(t, cfg.ArxivFullText)
	assert.Equal(t, Source{TopK: 1, MaxChars: 500}, cfg.Wikipedia)
	assert.Equal(t, "en", cfg.WikipediaLang)
	assert.Equal(t, Source{TopK: 5, MaxChars: 2000}, cfg.Tavily)
	assert.Equal(t, "basic", cfg.TavilyDepth)
	assert.Equal(t, "be helpful", cfg.SystemInstruction)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv(KeyGoogleAPIKey, "")
	t.Setenv(KeyGeminiAPIKey, "gemini-key")
	t.Setenv(KeyTavilyAPIKey, "tvly-key")
	t.Setenv(KeyMaxRounds, "3")
	t.Setenv(KeyParallelTools, "false")
	t.Setenv(KeyToolTimeout, "5s")
	t.Setenv(KeyWikipediaLang, "de")
	t.Setenv(KeyTavilyDepth, "advanced")

	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, "gemini-key", cfg.GoogleAPIKey)
	assert.Equal(t, "tvly-key", cfg.TavilyAPIKey)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.False(t, cfg.ParallelTools)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "de", cfg.WikipediaLang)
	assert.Equal(t, "advanced", cfg.TavilyDepth)
	assert.NoError(t, cfg.Validate())
}

func TestGoogleKeyTakesPrecedence(t *testing.T) {
	t.Setenv(KeyGoogleAPIKey, "google-key")
	t.Setenv(KeyGeminiAPIKey, "gemini-key")

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.GoogleAPIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{KeyMaxRounds, "0"},
		{KeyToolTimeout, "0s"},
		{KeyArxivTopK, "0"},
		{KeyTavilyDepth, "deep"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(New(""))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyGoogleAPIKey)
	assert.Contains(t, err.Error(), KeyTavilyAPIKey)

	err = cfg.ValidateWebSearch()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), KeyGoogleAPIKey)

	cfg.TavilyAPIKey = "tvly"
	assert.NoError(t, cfg.ValidateWebSearch())
	assert.ErrorContains(t, cfg.Validate(), KeyGoogleAPIKey)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RESEARCH_AGENT_TEST_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RESEARCH_AGENT_TEST_KEY") })

	LoadDotEnv(path)
	assert.Equal(t, "from-dotenv", os.Getenv("RESEARCH_AGENT_TEST_KEY"))

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
