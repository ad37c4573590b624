package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bnema/license-sessions-cli/internal/adapters/identity/credentials"
	"github.com/bnema/license-sessions-cli/internal/adapters/identity/local"
	"github.com/bnema/license-sessions-cli/internal/adapters/identity/oidc"
	metricsadapter "github.com/bnema/license-sessions-cli/internal/adapters/metrics"
	"github.com/bnema/license-sessions-cli/internal/adapters/render/dashboard"
	"github.com/bnema/license-sessions-cli/internal/adapters/store/postgres"
	redisstore "github.com/bnema/license-sessions-cli/internal/adapters/store/redis"
	tomlstore "github.com/bnema/license-sessions-cli/internal/adapters/store/toml"
	"github.com/bnema/license-sessions-cli/internal/application"
	"github.com/bnema/license-sessions-cli/internal/config"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type app struct {
	cfg             config.Config
	logger          *zap.Logger
	location        *time.Location
	recorder        *metricsadapter.Recorder
	auth            *application.AuthService
	openStore       func(ctx context.Context) (ports.AccountStore, func() error, error)
	renderDashboard func([]application.AccountUsage, dashboard.RenderOptions) (string, error)
	renderDetail    func(application.AccountDetail, dashboard.RenderOptions) (string, error)
	now             func() time.Time

	// authOut receives the browser sign-in URL; notice, when set, takes precedence so the
	// URL can be printed above a running spinner.
	authOut io.Writer
	notice  func(string)

	mu         sync.Mutex
	data       *application.DataService
	closeStore func() error
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	location, err := domain.LoadReferenceLocation(cfg.Billing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("wire billing time zone: %w", err)
	}

	a := &app{
		cfg:             cfg,
		logger:          log,
		location:        location,
		recorder:        metricsadapter.NewRecorder(),
		renderDashboard: dashboard.Render,
		renderDetail:    dashboard.RenderDetail,
		now:             time.Now,
		authOut:         os.Stderr,
	}
	a.openStore = func(ctx context.Context) (ports.AccountStore, func() error, error) {
		return openStore(ctx, cfg, log)
	}

	provider, err := a.identityProvider()
	if err != nil {
		return nil, fmt.Errorf("wire identity provider: %w", err)
	}
	a.auth = application.NewAuthService(provider, credentials.NewStore(cfg.Auth.CredentialsDir, credentials.WithLogger(log)), log)

	return a, nil
}

func (a *app) identityProvider() (ports.IdentityProvider, error) {
	switch a.cfg.Auth.Provider {
	case config.ProviderOIDC:
		return oidc.NewProvider(oidc.Config{
			Issuer:       a.cfg.Auth.Issuer,
			ClientID:     a.cfg.Auth.ClientID,
			ClientSecret: a.cfg.Auth.ClientSecret,
			ListenAddr:   a.cfg.Auth.Listen,
			Timeout:      a.cfg.Auth.Timeout,
		}, oidc.WithAuthURLHandler(a.presentAuthURL), oidc.WithLogger(a.logger))
	default:
		return local.NewProvider(), nil
	}
}

func (a *app) presentAuthURL(authURL string) error {
	message := fmt.Sprintf("Open this URL to sign in:\n%s", authURL)
	if a.notice != nil {
		a.notice(message)
		return nil
	}
	_, err := fmt.Fprintln(a.authOut, message)
	return err
}

// dataService connects the configured store on first use, so commands that never touch
// account data work without a reachable backend.
func (a *app) dataService(ctx context.Context) (*application.DataService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.data != nil {
		return a.data, nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Driver, err)
	}

	a.data = application.NewDataService(store, ports.SystemClock{},
		application.WithLogger(a.logger),
		application.WithRecorder(a.recorder),
		application.WithLocation(a.location),
	)
	a.closeStore = closeStore
	return a.data, nil
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
		a.closeStore = nil
		a.data = nil
	}
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ports.AccountStore, func() error, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		store, err := redisstore.Open(ctx, cfg.Store.RedisURL, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Store.PostgresDSN, postgres.Options{EnforceQuota: cfg.Store.EnforceQuota}, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		v := viper.New()
		v.Set("store.path", cfg.Store.Path)
		store, err := tomlstore.NewStore(v, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}
