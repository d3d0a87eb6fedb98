package services

import (
	"fmt"
	"strings"
	"time"

	"autotag/internal/api/gemini"
	"autotag/internal/api/musicbrainz"
	"autotag/internal/api/navidrome"
	"autotag/internal/api/openai"
	"autotag/internal/api/soundcloud"
	"autotag/internal/api/spotify"
	"autotag/internal/config"
	"autotag/internal/core/genre"
	"autotag/internal/core/scanner"
	"autotag/internal/core/search"
	"autotag/internal/core/tagger"
	"autotag/internal/interfaces"
	"autotag/internal/ledger"
	"autotag/internal/library"
	"autotag/internal/shared"
	"autotag/internal/tagstore"

	"go.uber.org/zap"
)

// ServiceContainer holds all application services
type ServiceContainer struct {
	Config           *config.Config
	Log              *zap.Logger
	Logger           *ConsoleLogger
	WarningCollector *shared.WarningCollector
	Tags             *tagstore.Store
	Ledger           *ledger.Ledger
	Energy           genre.EnergyMap
	Reconciler       *genre.Reconciler
	Classifier       interfaces.Classifier
	SearchService    *search.Service
	Mirror           interfaces.RatingMirror

	// Library is nil until OpenLibrary succeeds.
	Library interfaces.LibraryStore
}

// NewServiceContainer loads the energy map and ledger and wires every
// service the configuration asks for. The library is opened separately.
func NewServiceContainer(cfg *config.Config, log *zap.Logger) (*ServiceContainer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Create console logger first as other services may need it
	logger := NewConsoleLogger()
	logger.SetDebugMode(cfg.Debug)

	energy, err := genre.LoadEnergyMap(cfg.EnergyMapPath)
	if err != nil {
		return nil, err
	}

	led, err := ledger.Load(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}

	searchService := search.NewService(NewGenreSearcher(cfg, log), SearchRetryPolicy(), log)

	var mirror interfaces.RatingMirror
	if cfg.NavidromeEnabled() {
		mirror = navidrome.NewNavidromeClient(cfg.Navidrome.URL, cfg.Navidrome.Username, cfg.Navidrome.Password, log)
	}

	return &ServiceContainer{
		Config:           cfg,
		Log:              log,
		Logger:           logger,
		WarningCollector: shared.NewWarningCollector(cfg.WarningBehavior != "silent"),
		Tags:             tagstore.New(log),
		Ledger:           led,
		Energy:           energy,
		Reconciler:       genre.NewReconciler(energy, searchService.Enabled(), log),
		Classifier:       NewClassifier(cfg.AI, log),
		SearchService:    searchService,
		Mirror:           mirror,
	}, nil
}

// NewClassifier returns the chat classifier named by the configuration.
func NewClassifier(ai config.AIConfig, log *zap.Logger) interfaces.Classifier {
	switch ai.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(ai.APIKey, ai.Model, ai.BaseURL, log)
	default:
		return gemini.NewClient(ai.APIKey, ai.Model, ai.BaseURL, log)
	}
}

// NewGenreSearcher returns the configured search provider, or nil when the
// search is disabled or lacks credentials.
func NewGenreSearcher(cfg *config.Config, log *zap.Logger) interfaces.GenreSearcher {
	if !cfg.SearchEnabled() {
		return nil
	}
	switch strings.ToLower(cfg.Search.Provider) {
	case config.SearchSoundCloud:
		return soundcloud.NewClient(cfg.Search.SoundCloudClientID, cfg.Search.SoundCloudAuthToken, "", log)
	case config.SearchSpotify:
		return spotify.NewSpotifyClient(cfg.Search.SpotifyClientID, cfg.Search.SpotifyClientSecret, log)
	case config.SearchMusicBrainz:
		return musicbrainz.NewClient(log)
	}
	return nil
}

// ClassifyRetryPolicy turns the AI settings into a retry policy.
func ClassifyRetryPolicy(ai config.AIConfig) shared.RetryPolicy {
	return shared.RetryPolicy{
		MaxAttempts: ai.MaxRetries,
		BaseDelay:   ai.RetryBaseDelay(),
		MaxDelay:    10 * time.Minute,
	}
}

// SearchRetryPolicy is used for every genre search provider.
func SearchRetryPolicy() shared.RetryPolicy {
	return shared.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// OpenLibrary connects to the DJ library when configured. An unavailable
// library is not fatal: the run continues with file tags only.
func (sc *ServiceContainer) OpenLibrary() bool {
	if !sc.Config.LibraryEnabled() {
		return false
	}
	store, err := library.Open(sc.Config.Library.DBPath, library.Options{Logger: sc.Log})
	if err != nil {
		sc.Logger.Warning("Library database unavailable: %v", err)
		sc.Logger.Warning("Close your DJ software if it is running. Continuing with file tags only.")
		return false
	}
	sc.Library = store
	sc.Logger.Success("Library database connection established")
	return true
}

// NewScanner returns a scanner using the container's tag store and ledger.
func (sc *ServiceContainer) NewScanner() *scanner.Scanner {
	return scanner.New(sc.Tags, sc.Ledger, sc.Config.BitrateMin, sc.Config.Workers, sc.Log)
}

// NewTagger returns a tagger wired to every configured service.
func (sc *ServiceContainer) NewTagger(showProgress bool) *tagger.Tagger {
	return tagger.New(tagger.Deps{
		Classifier: sc.Classifier,
		Search:     sc.SearchService,
		Reconciler: sc.Reconciler,
		Tags:       sc.Tags,
		Library:    sc.Library,
		Mirror:     sc.Mirror,
		Ledger:     sc.Ledger,
		Warnings:   sc.WarningCollector,
		Console:    sc.Logger,
		Logger:     sc.Log,
	}, tagger.Options{
		DryRun:       sc.Config.DryRun,
		RequestDelay: sc.Config.AI.RequestDelay(),
		Retry:        ClassifyRetryPolicy(sc.Config.AI),
		ShowProgress: showProgress,
	})
}

// Close releases the library connection and flushes the logger.
func (sc *ServiceContainer) Close() error {
	defer sc.Log.Sync() //nolint:errcheck
	if sc.Library == nil {
		return nil
	}
	if err := sc.Library.Close(); err != nil {
		return fmt.Errorf("failed to close library: %w", err)
	}
	sc.Logger.Info("Library database connection closed")
	return nil
}

// ConsoleLogger implementation
type ConsoleLogger struct {
	debugMode bool
}

func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{debugMode: false}
}

func (cl *ConsoleLogger) Info(message string, args ...interface{}) {
	shared.ColorInfo.Printf(message+"\n", args...)
}

func (cl *ConsoleLogger) Warning(message string, args ...interface{}) {
	shared.ColorWarning.Printf("⚠️ "+message+"\n", args...)
}

func (cl *ConsoleLogger) Error(message string, args ...interface{}) {
	shared.ColorError.Printf("❌ "+message+"\n", args...)
}

func (cl *ConsoleLogger) Debug(message string, args ...interface{}) {
	if !cl.debugMode {
		return
	}
	shared.ColorMuted.Printf("🐛 DEBUG: "+message+"\n", args...)
}

func (cl *ConsoleLogger) Success(message string, args ...interface{}) {
	shared.ColorSuccess.Printf("✅ "+message+"\n", args...)
}

func (cl *ConsoleLogger) SetDebugMode(enabled bool) {
	cl.debugMode = enabled
}
