// Package config loads the research agent settings from the environment,
// an optional .env file and bound command-line flags.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	KeyGoogleAPIKey      = "GOOGLE_API_KEY"
	KeyGeminiAPIKey      = "GEMINI_API_KEY"
	KeyTavilyAPIKey      = "TAVILY_API_KEY"
	KeyModel             = "MODEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyMaxRounds         = "MAX_ROUNDS"
	KeyParallelTools     = "PARALLEL_TOOLS"
	KeyToolTimeout       = "TOOL_TIMEOUT"
	KeyRequestTimeout    = "REQUEST_TIMEOUT"
	KeyArxivTopK         = "ARXIV_TOP_K"
	KeyArxivMaxChars     = "ARXIV_MAX_CHARS"
	KeyArxivFullText     = "ARXIV_FULL_TEXT"
	KeyWikipediaTopK     = "WIKIPEDIA_TOP_K"
	KeyWikipediaMaxChars = "WIKIPEDIA_MAX_CHARS"
	KeyWikipediaLang     = "WIKIPEDIA_LANG"
	KeyTavilyMaxResults  = "TAVILY_MAX_RESULTS"
	KeyTavilyMaxChars    = "TAVILY_MAX_CHARS"
	KeyTavilyDepth       = "TAVILY_DEPTH"
	KeySystemInstruction = "SYSTEM_INSTRUCTION"
)

type Source struct {
	TopK     int
	MaxChars int
}

type Config struct {
	GoogleAPIKey string
	TavilyAPIKey string
	Model        string
	HTTPPort     string

	MaxRounds      int
	ParallelTools  bool
	ToolTimeout    time.Duration
	RequestTimeout time.Duration

	Arxiv         Source
	ArxivFullText bool
	Wikipedia     Source
	WikipediaLang string
	Tavily        Source
	TavilyDepth   string

	SystemInstruction string
}

// SetDefaults registers every default on v. The system instruction default
// is supplied by the caller since it lives with the embedded assets.
func SetDefaults(v *viper.Viper, systemInstruction string) {
	v.SetDefault(KeyModel, "gemini-2.5-flash")
	v.SetDefault(KeyHTTPPort, "8080")
	v.SetDefault(KeyMaxRounds, 1)
	v.SetDefault(KeyParallelTools, true)
	v.SetDefault(KeyToolTimeout, 30*time.Second)
	v.SetDefault(KeyRequestTimeout, 2*time.Minute)
	v.SetDefault(KeyArxivTopK, 2)
	v.SetDefault(KeyArxivMaxChars, 500)
	v.SetDefault(KeyArxivFullText, false)
	v.SetDefault(KeyWikipediaTopK, 1)
	v.SetDefault(KeyWikipediaMaxChars, 500)
	v.SetDefault(KeyWikipediaLang, "en")
	v.SetDefault(KeyTavilyMaxResults, 5)
	v.SetDefault(KeyTavilyMaxChars, 2000)
	v.SetDefault(KeyTavilyDepth, "basic")
	v.SetDefault(KeySystemInstruction, systemInstruction)
}

// LoadDotEnv reads the given .env files (".env" when none are named) into
// the process environment. A missing file is not an error.
func LoadDotEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
}

// New returns a viper instance reading from the environment with the
// defaults applied.
func New(systemInstruction string) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v, systemInstruction)
	return v
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		GoogleAPIKey: v.GetString(KeyGoogleAPIKey),
		TavilyAPIKey: v.GetString(KeyTavilyAPIKey),
		Model:        v.GetString(KeyModel),
		HTTPPort:     v.GetString(KeyHTTPPort),

		MaxRounds:      v.GetInt(KeyMaxRounds),
		ParallelTools:  v.GetBool(KeyParallelTools),
		ToolTimeout:    v.GetDuration(KeyToolTimeout),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),

		Arxiv:         Source{TopK: v.GetInt(KeyArxivTopK), MaxChars: v.GetInt(KeyArxivMaxChars)},
		ArxivFullText: v.GetBool(KeyArxivFullText),
		Wikipedia:     Source{TopK: v.GetInt(KeyWikipediaTopK), MaxChars: v.GetInt(KeyWikipediaMaxChars)},
		WikipediaLang: v.GetString(KeyWikipediaLang),
		Tavily:        Source{TopK: v.GetInt(KeyTavilyMaxResults), MaxChars: v.GetInt(KeyTavilyMaxChars)},
		TavilyDepth:   v.GetString(KeyTavilyDepth),

		SystemInstruction: v.GetString(KeySystemInstruction),
	}
	if cfg.GoogleAPIKey == "" {
		cfg.GoogleAPIKey = v.GetString(KeyGeminiAPIKey)
	}

	if cfg.MaxRounds < 1 {
		return nil, errors.Errorf("%s must be at least 1, got %d", KeyMaxRounds, cfg.MaxRounds)
	}
	if cfg.ToolTimeout <= 0 {
		return nil, errors.Errorf("%s must be positive", KeyToolTimeout)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.Errorf("%s must be positive", KeyRequestTimeout)
	}
	for key, n := range map[string]int{
		KeyArxivTopK:         cfg.Arxiv.TopK,
		KeyArxivMaxChars:     cfg.Arxiv.MaxChars,
		KeyWikipediaTopK:     cfg.Wikipedia.TopK,
		KeyWikipediaMaxChars: cfg.Wikipedia.MaxChars,
		KeyTavilyMaxResults:  cfg.Tavily.TopK,
		KeyTavilyMaxChars:    cfg.Tavily.MaxChars,
	} {
		if n < 1 {
			return nil, errors.Errorf("%s must be at least 1, got %d", key, n)
		}
	}
	switch cfg.TavilyDepth {
	case "basic", "advanced":
	default:
		return nil, errors.Errorf("%s must be basic or advanced, got %q", KeyTavilyDepth, cfg.TavilyDepth)
	}

	return cfg, nil
}

// Validate reports every credential the full agent needs but lacks.
func (c *Config) Validate() error {
	var missing []string
	if c.GoogleAPIKey == "" {
		missing = append(missing, KeyGoogleAPIKey+" (or "+KeyGeminiAPIKey+")")
	}
	if c.TavilyAPIKey == "" {
		missing = append(missing, KeyTavilyAPIKey)
	}
	return missingError(missing)
}

// ValidateWebSearch only checks the credential the search tools need.
func (c *Config) ValidateWebSearch() error {
	if c.TavilyAPIKey == "" {
		return missingError([]string{KeyTavilyAPIKey})
	}
	return nil
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return errors.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
}

func (c *Config) Addr() string {
	return ":" + c.HTTPPort
}
