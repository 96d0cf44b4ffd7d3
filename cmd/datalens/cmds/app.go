package cmds

import (
	"time"

	"github.com/go-go-golems/datalens/pkg/api"
	"github.com/go-go-golems/datalens/pkg/auth"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/datalens/pkg/config"
	"github.com/go-go-golems/datalens/pkg/persistence/prefstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// App bundles what every command needs: the resolved config, the backend
// client and the preference store.
type App struct {
	Config *config.Config
	Client *api.Client
	Prefs  prefstore.Store
}

// AddGlobalFlags registers the flags every command understands.
func AddGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (default ~/.datalens/config.yaml)")
	f.String("base-url", "", "Backend base URL")
	f.String("token", "", "Bearer token for the backend")
	f.String("model", "", "Answering model")
	f.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	f.Bool("with-caller", false, "Include caller (file:line) in logs")
}

// LoadConfig reads the config file named by --config and applies the root
// command's flag overrides.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if cfg.LogLevel != "" {
		if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(l)
		}
	}
	return cfg, nil
}

// applyFlagOverrides copies the global flags the user actually set into cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	overrides := map[string]*string{
		"base-url":  &cfg.BaseURL,
		"token":     &cfg.Token,
		"model":     &cfg.Model,
		"log-level": &cfg.LogLevel,
	}
	for name, dst := range overrides {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
}

func NewApp(cmd *cobra.Command) (*App, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	checkToken(cfg.Token)

	client, err := api.NewClient(api.Options{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, err
	}

	prefs, err := prefstore.Open(cfg.PrefsDB)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.PrefsDB).Msg("could not open preferences, using memory")
		prefs = prefstore.NewInMemoryStore()
	}

	return &App{Config: cfg, Client: client, Prefs: prefs}, nil
}

// Controller builds a chat controller over the app's backend. listener and
// nav may be nil.
func (a *App) Controller(listener chat.Listener, nav chat.Navigator) (*chat.Controller, error) {
	policy, err := a.Config.StalePolicy()
	if err != nil {
		return nil, err
	}
	return chat.NewController(chat.Config{
		Service:      a.Client,
		Catalog:      a.Client,
		Models:       a.Client,
		ModelStore:   prefstore.ModelStore{Store: a.Prefs},
		Navigator:    nav,
		Listener:     listener,
		StalePolicy:  policy,
		DefaultModel: a.Config.Model,
		SendTimeout:  a.Config.RequestTimeout(),
	})
}

func (a *App) Close() {
	if a == nil || a.Prefs == nil {
		return
	}
	if err := a.Prefs.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close preferences")
	}
}

// checkToken warns about tokens the backend is going to reject.
func checkToken(token string) {
	if token == "" {
		log.Debug().Msg("no token configured, requests are anonymous")
		return
	}
	info, err := auth.Inspect(token)
	if err != nil {
		log.Warn().Err(err).Msg("configured token is not usable")
		return
	}
	if info.Opaque {
		return
	}
	if info.Expired(time.Now()) {
		log.Warn().Time("expired_at", info.ExpiresAt).Msg("configured token has expired")
		return
	}
	log.Debug().Str("user", info.Username).Str("subject", info.Subject).Msg("using token")
}
