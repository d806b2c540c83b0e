package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zouwei/moraya-speechd/internal/audio"
	"github.com/zouwei/moraya-speechd/internal/httpapi"
	"github.com/zouwei/moraya-speechd/internal/metrics"
	"github.com/zouwei/moraya-speechd/internal/profile"
	"github.com/zouwei/moraya-speechd/internal/session"
	"github.com/zouwei/moraya-speechd/internal/stt"
)

type App struct {
	cfg       Config
	logger    *log.Logger
	db        *pgxpool.Pool
	profiles  *profile.Store
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	keys      *KeyCache
	providers map[string]ProviderConfig
	manager   *session.Manager
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		keys:      NewKeyCache(),
		providers: make(map[string]ProviderConfig),
	}

	providers, err := LoadProviders(cfg.ProvidersFile)
	switch {
	case err == nil:
		for _, p := range providers {
			a.providers[p.ID] = p
		}
		logger.Printf("app: loaded %d provider configs from %s", len(providers), cfg.ProvidersFile)
	case os.IsNotExist(err):
		logger.Printf("app: no providers file at %s, inline provider configs only", cfg.ProvidersFile)
	default:
		return nil, err
	}

	// The database only backs voice profiles; the engine runs without it.
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.profiles = profile.New(db)
	} else {
		logger.Printf("app: DATABASE_URL not set, voice profiles are disabled")
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	var matcher session.ProfileMatcher
	if a.profiles != nil {
		matcher = a.profiles
	}
	var capture session.CaptureFactory
	if cfg.EnableMicrophone {
		capture = func(opts audio.CaptureOptions) (audio.Capture, error) {
			return audio.NewMicCapture(opts), nil
		}
	}

	a.manager = session.NewManager(session.ManagerOptions{
		Logger:        logger,
		Metrics:       a.metrics,
		Capture:       capture,
		Profiles:      matcher,
		RecordingsDir: cfg.RecordingsDir,
		MergeWindow:   time.Duration(cfg.MergeWindowMs) * time.Millisecond,
		Revoke:        a.revokeCredential,
	})
	return a, nil
}

// revokeCredential purges cached keys for every provider entry matching the
// config's provider type, forcing a fresh environment read on next use.
func (a *App) revokeCredential(cfg stt.Config) {
	for _, p := range a.providers {
		if p.Provider == cfg.Provider {
			a.keys.Forget(p)
		}
	}
}

// ResolveConfig maps a providers-file config id to a dial config with the
// API key filled in.
func (a *App) ResolveConfig(configID string) (stt.Config, error) {
	p, ok := a.providers[configID]
	if !ok {
		return stt.Config{}, fmt.Errorf("unknown provider config: %s", configID)
	}
	return p.sttConfig(a.keys.Resolve(p)), nil
}

func (a *App) Manager() *session.Manager { return a.manager }

func (a *App) Router(streams *httpapi.StreamRegistry) http.Handler {
	var store httpapi.ProfileStore
	if a.profiles != nil {
		store = a.profiles
	}
	return httpapi.NewRouter(httpapi.RouterConfig{
		JWTSecret:         a.cfg.JWTSecret,
		JWTExpiry:         a.cfg.JWTExpiry,
		PairingSecret:     a.cfg.PairingSecret,
		MicrophoneEnabled: a.cfg.EnableMicrophone,
	}, a.logger, a.manager, store, a.ResolveConfig,
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), streams)
}

func (a *App) Close() error {
	a.manager.StopAll()
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
