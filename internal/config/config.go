package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	RequestTimeout     = 60 * time.Second
	DefaultConfigPath  = "config/config.json"
	DefaultBitrateMin  = 320_000
	DefaultEnergyMap   = "energy_map.json"
	DefaultLedger      = "processed_songs.json"
	DefaultWorkers     = 4
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// Classifier providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Search providers; an empty provider disables the genre search.
const (
	SearchSoundCloud  = "soundcloud"
	SearchSpotify     = "spotify"
	SearchMusicBrainz = "musicbrainz"
)

// AIConfig configures the chat classifier.
type AIConfig struct {
	Provider              string `json:"Provider"`
	APIKey                string `json:"APIKey"`
	Model                 string `json:"Model"`
	BaseURL               string `json:"BaseURL,omitempty"`
	RequestDelaySeconds   int    `json:"RequestDelaySeconds"`   // pause between classifier requests
	MaxRetries            int    `json:"MaxRetries"`            // attempts per track on quota errors
	RetryBaseDelaySeconds int    `json:"RetryBaseDelaySeconds"` // backoff base when the server gives no delay
}

// RequestDelay returns the configured pause between requests.
func (a AIConfig) RequestDelay() time.Duration {
	return time.Duration(a.RequestDelaySeconds) * time.Second
}

// RetryBaseDelay returns the exponential backoff base.
func (a AIConfig) RetryBaseDelay() time.Duration {
	return time.Duration(a.RetryBaseDelaySeconds) * time.Second
}

// SearchConfig configures the optional remix genre search.
type SearchConfig struct {
	Provider            string `json:"Provider"`
	SoundCloudClientID  string `json:"SoundCloudClientID"`
	SoundCloudAuthToken string `json:"SoundCloudAuthToken"`
	SpotifyClientID     string `json:"SpotifyClientID"`
	SpotifyClientSecret string `json:"SpotifyClientSecret"`
}

// LibraryConfig points at the DJ library database.
type LibraryConfig struct {
	DBPath string `json:"DBPath"`
}

// NavidromeConfig enables mirroring ratings to a Navidrome server.
type NavidromeConfig struct {
	URL      string `json:"URL"`
	Username string `json:"Username"`
	Password string `json:"Password"`
}

// Configuration structure
type Config struct {
	MusicDir        string          `json:"MusicDir"`
	BitrateMin      int             `json:"BitrateMin"` // bits per second
	EnergyMapPath   string          `json:"EnergyMapPath"`
	LedgerPath      string          `json:"LedgerPath"`
	Workers         int             `json:"Workers"` // files read in parallel during the scan
	AI              AIConfig        `json:"AI"`
	Search          SearchConfig    `json:"Search"`
	Library         LibraryConfig   `json:"Library"`
	Navidrome       NavidromeConfig `json:"Navidrome"`
	WarningBehavior string          `json:"WarningBehavior"` // "summary" or "silent"

	DryRun    bool `json:"-"`
	Debug     bool `json:"-"`
	NoLibrary bool `json:"-"`
}

// GetDefaultConfig returns the configuration used when no file exists.
func GetDefaultConfig() *Config {
	return &Config{
		BitrateMin:    DefaultBitrateMin,
		EnergyMapPath: DefaultEnergyMap,
		LedgerPath:    DefaultLedger,
		Workers:       DefaultWorkers,
		AI: AIConfig{
			Provider:              ProviderGemini,
			Model:                 DefaultGeminiModel,
			RequestDelaySeconds:   7,
			MaxRetries:            5,
			RetryBaseDelaySeconds: 60,
		},
		Search: SearchConfig{
			Provider: SearchSoundCloud,
		},
		WarningBehavior: "summary",
	}
}

// envOverrides lists the environment variables that override file settings.
type envOverrides struct {
	MusicDir            string `envconfig:"MUSIC_DIR"`
	GenAIKey            string `envconfig:"GENAI_API_KEY"`
	OpenAIKey           string `envconfig:"OPENAI_API_KEY"`
	AIProvider          string `envconfig:"AUTOTAG_AI_PROVIDER"`
	SearchProvider      string `envconfig:"AUTOTAG_SEARCH_PROVIDER"`
	SoundCloudClientID  string `envconfig:"SOUNDCLOUD_CLIENT_ID"`
	SoundCloudAuthToken string `envconfig:"SOUNDCLOUD_AUTH_TOKEN"`
	SpotifyClientID     string `envconfig:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET"`
	NavidromeURL        string `envconfig:"NAVIDROME_URL"`
	NavidromeUsername   string `envconfig:"NAVIDROME_USERNAME"`
	NavidromePassword   string `envconfig:"NAVIDROME_PASSWORD"`
	LibraryDB           string `envconfig:"REKORDBOX_DB"`
}

// ApplyEnv overlays set environment variables onto cfg.
func (cfg *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.MusicDir, env.MusicDir)
	set(&cfg.AI.Provider, env.AIProvider)
	switch cfg.AI.Provider {
	case ProviderOpenAI:
		set(&cfg.AI.APIKey, env.OpenAIKey)
	default:
		set(&cfg.AI.APIKey, env.GenAIKey)
	}
	set(&cfg.Search.Provider, env.SearchProvider)
	set(&cfg.Search.SoundCloudClientID, env.SoundCloudClientID)
	set(&cfg.Search.SoundCloudAuthToken, env.SoundCloudAuthToken)
	set(&cfg.Search.SpotifyClientID, env.SpotifyClientID)
	set(&cfg.Search.SpotifyClientSecret, env.SpotifyClientSecret)
	set(&cfg.Navidrome.URL, env.NavidromeURL)
	set(&cfg.Navidrome.Username, env.NavidromeUsername)
	set(&cfg.Navidrome.Password, env.NavidromePassword)
	set(&cfg.Library.DBPath, env.LibraryDB)
	return nil
}

// ApplyDefaults fills zero values left by a partial config file.
func (cfg *Config) ApplyDefaults() {
	defaults := GetDefaultConfig()

	if cfg.BitrateMin == 0 {
		cfg.BitrateMin = defaults.BitrateMin
	}
	if cfg.EnergyMapPath == "" {
		cfg.EnergyMapPath = defaults.EnergyMapPath
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = defaults.LedgerPath
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = defaults.AI.Provider
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = DefaultGeminiModel
		if cfg.AI.Provider == ProviderOpenAI {
			cfg.AI.Model = DefaultOpenAIModel
		}
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = defaults.AI.MaxRetries
	}
	if cfg.AI.RetryBaseDelaySeconds <= 0 {
		cfg.AI.RetryBaseDelaySeconds = defaults.AI.RetryBaseDelaySeconds
	}
	if cfg.WarningBehavior == "" {
		cfg.WarningBehavior = defaults.WarningBehavior
	}
}

// Validate reports configuration that would make a run fail.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.MusicDir == "" {
		errs = append(errs, errors.New("MusicDir is not set (use --music-dir or MUSIC_DIR)"))
	}
	if cfg.BitrateMin < 0 {
		errs = append(errs, fmt.Errorf("BitrateMin must not be negative, got %d", cfg.BitrateMin))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("Workers must be at least 1, got %d", cfg.Workers))
	}
	switch cfg.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown AI provider %q", cfg.AI.Provider))
	}
	if cfg.AI.APIKey == "" {
		errs = append(errs, errors.New("AI API key is not set (GENAI_API_KEY or OPENAI_API_KEY)"))
	}
	switch strings.ToLower(cfg.Search.Provider) {
	case "", SearchSoundCloud, SearchSpotify, SearchMusicBrainz:
	default:
		errs = append(errs, fmt.Errorf("unknown search provider %q", cfg.Search.Provider))
	}
	switch cfg.WarningBehavior {
	case "summary", "silent":
	default:
		errs = append(errs, fmt.Errorf("WarningBehavior must be \"summary\" or \"silent\", got %q", cfg.WarningBehavior))
	}
	return errors.Join(errs...)
}

// SearchEnabled reports whether the configured search provider has the
// credentials it needs. MusicBrainz needs none.
func (cfg *Config) SearchEnabled() bool {
	switch strings.ToLower(cfg.Search.Provider) {
	case SearchSoundCloud:
		return cfg.Search.SoundCloudClientID != "" && cfg.Search.SoundCloudAuthToken != ""
	case SearchSpotify:
		return cfg.Search.SpotifyClientID != "" && cfg.Search.SpotifyClientSecret != ""
	case SearchMusicBrainz:
		return true
	}
	return false
}

// LibraryEnabled reports whether the DJ library should be updated.
func (cfg *Config) LibraryEnabled() bool {
	return !cfg.NoLibrary && cfg.Library.DBPath != ""
}

// NavidromeEnabled reports whether ratings are mirrored to Navidrome.
func (cfg *Config) NavidromeEnabled() bool {
	return cfg.Navidrome.URL != "" && cfg.Navidrome.Username != ""
}

// CreateDirIfNotExists creates a directory if it does not exist
func CreateDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the file at
// filePath when it exists, then environment overrides.
func Load(filePath string) (*Config, error) {
	cfg := GetDefaultConfig()
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			if err := LoadConfig(filePath, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to a JSON file
func SaveConfig(filePath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	dir := filepath.Dir(filePath)
	if err := CreateDirIfNotExists(dir); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
