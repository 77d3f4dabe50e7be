// Package commands implements the sessionctl command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benvon/wellness-sessions/internal/apiclient"
	"github.com/benvon/wellness-sessions/internal/config"
	"github.com/benvon/wellness-sessions/internal/credentials"
	"github.com/benvon/wellness-sessions/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type rootOptions struct {
	configPath string
	apiURL     string
	profile    string
	logLevel   string
}

// NewRootCmd builds the sessionctl command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Command line client for wellness sessions",
		Long:          "Sign in, edit drafts with autosave, list and publish wellness sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default is <user config dir>/wellness-sessions/sessionctl.yaml)")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "API base URL, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "Credential profile, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newDraftCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newPublishCmd(opts))

	return cmd
}

// app is what a command runs with once flags and config are resolved
type app struct {
	cfg     *config.ClientConfig
	logger  *zap.Logger
	store   credentials.Store
	client  *apiclient.Client
	closers []func() error
}

func (o *rootOptions) load(ctx context.Context) (*app, error) {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultClientConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.profile != "" {
		cfg.Profile = o.profile
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	zapLogger, err := logger.NewCLILogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: zapLogger,
		client: apiclient.New(cfg.APIURL,
			apiclient.WithLogger(zapLogger),
			apiclient.WithHTTPClient(&http.Client{Timeout: cfg.Autosave.RequestTimeout}),
		),
	}

	switch cfg.Credentials.Store {
	case config.StoreRedis:
		rdb, err := openRedis(ctx, cfg.Credentials.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.store = credentials.NewRedisStore(rdb, cfg.Profile)
	default:
		credPath := cfg.Credentials.Path
		if credPath == "" {
			credPath, err = credentials.DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		a.store = credentials.NewFileStore(credPath)
	}

	zapLogger.Debug("sessionctl_config_loaded",
		zap.String("config_path", path),
		zap.String("api_url", cfg.APIURL),
		zap.String("profile", cfg.Profile),
		zap.String("credential_store", cfg.Credentials.Store),
	)
	return a, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("failed_to_close_resource", zap.Error(err))
		}
	}
	_ = logger.Sync(a.logger)
}

// token returns the stored credential, with a hint to log in when there is none
func (a *app) token() (*oauth2.Token, error) {
	tok, err := a.store.Token()
	if err != nil {
		return nil, fmt.Errorf("%w (run 'sessionctl login' first)", err)
	}
	return tok, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
