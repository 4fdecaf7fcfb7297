// hashdrive is the personal file registry over content-addressed storage.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hashdrive/hashdrive/internal/blob"
	"github.com/hashdrive/hashdrive/internal/cache"
	"github.com/hashdrive/hashdrive/internal/config"
	"github.com/hashdrive/hashdrive/internal/faults"
	"github.com/hashdrive/hashdrive/internal/gateway"
	"github.com/hashdrive/hashdrive/internal/identity"
	"github.com/hashdrive/hashdrive/internal/kv"
	"github.com/hashdrive/hashdrive/internal/pin"
	"github.com/hashdrive/hashdrive/internal/pointer"
	"github.com/hashdrive/hashdrive/internal/registry"
	"github.com/hashdrive/hashdrive/internal/retrieval"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile      string
	logLevel     string
	sessionToken string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hashdrive",
		Short: "hashdrive - personal file registry over content-addressed storage",
		Long: `hashdrive keeps your file and folder metadata in a single registry
snapshot on a content-addressed storage network, retrieved through public
gateways ranked by observed health.

QUICK START:

  # Create a config and local state directory:
  hashdrive init --owner alice

  # Upload a file and list the root folder:
  hashdrive upload report.pdf
  hashdrive ls

  # Keep content alive on the network:
  hashdrive pin <file-id>

For more help on any command, use: hashdrive <command> --help`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&sessionToken, "token", "", "session token (overrides owner_id in config)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newMvCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newTrashCmd())
	rootCmd.AddCommand(newStarCmd())
	rootCmd.AddCommand(newRecentsCmd())
	rootCmd.AddCommand(newTagCmd())
	rootCmd.AddCommand(newVersionsCmd())
	rootCmd.AddCommand(newPinCmd())
	rootCmd.AddCommand(newUnpinCmd())
	rootCmd.AddCommand(newShareCmd())
	rootCmd.AddCommand(newGatewaysCmd())
	rootCmd.AddCommand(newDuplicatesCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newCacheCmd())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hashdrive %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, faults.UserMessage(err))
		os.Exit(1)
	}
}

// app holds the wired components behind every command.
type app struct {
	cfg       *config.Config
	store     *registry.Store
	optimizer *gateway.Optimizer
	engine    *retrieval.Engine
	cache     *cache.Cache
	state     kv.Store
}

// defaultConfigPath returns the config file location when --config is not
// given.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "hashdrive.yaml"
	}
	return filepath.Join(home, ".hashdrive", "config.yaml")
}

// loadConfig reads the config file, falling back to defaults when none
// exists and no path was forced.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	forced := path != ""
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !forced {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// newApp wires every component from configuration and loads the owner's
// registry. Commands that only touch local state (init, gateways, cache)
// use lighter paths and never call this.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)

	ownerID, err := resolveOwner(cfg)
	if err != nil {
		return nil, err
	}

	state, err := kv.NewFile(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	optimizer := gateway.New(gateway.Options{
		Persist:      state,
		Interval:     parseDuration(cfg.Gateway.HealthInterval, 5*time.Minute),
		StartupDelay: parseDuration(cfg.Gateway.HealthStartupDelay, 30*time.Second),
		Logger:       log.Logger,
	})
	for _, gw := range cfg.Gateway.Custom {
		optimizer.AddCustomGateway(gw, "")
	}

	engine := retrieval.New(retrieval.Options{
		Ranker: optimizer,
		Logger: log.Logger,
	})

	contentCache := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxAge:     parseDuration(cfg.Cache.MaxAge, 24*time.Hour),
		Persist:    state,
		Logger:     log.Logger,
	})
	if err := contentCache.Load(); err != nil {
		log.Warn().Err(err).Msg("cache state discarded")
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		return nil, err
	}
	pointers, err := openPointerStore(ctx, cfg, state)
	if err != nil {
		return nil, err
	}
	provider, err := openPinProvider(cfg)
	if err != nil {
		return nil, err
	}

	store := registry.NewStore(registry.Deps{
		Pointers: pointers,
		Blobs:    blobs,
		// Snapshots committed through our own blob backend must be
		// readable back without waiting for a public gateway to pick
		// them up, so reads go local-first.
		Fetcher: retrieval.NewLocalFirst(blobs, engine, log.Logger),
		Cache:   contentCache,
		Pins:    pin.NewManager(provider, log.Logger),
		Logger:  log.Logger,
	})
	if err := store.Load(ctx, ownerID); err != nil {
		if faults.Retryable(err) {
			// The snapshot exists but could not be fetched; reads still run
			// against an empty view, and the store refuses commits until a
			// session loads the real snapshot again.
			log.Warn().Err(err).Msg("registry unavailable, continuing with a read-only empty view")
		} else {
			return nil, err
		}
	}

	return &app{
		cfg:       cfg,
		store:     store,
		optimizer: optimizer,
		engine:    engine,
		cache:     contentCache,
		state:     state,
	}, nil
}

// resolveOwner prefers an explicit session token over the configured owner.
func resolveOwner(cfg *config.Config) (string, error) {
	if sessionToken != "" {
		verifier, err := identity.NewVerifier(cfg.Identity.TokenSecret)
		if err != nil {
			return "", err
		}
		id, err := verifier.Verify(sessionToken)
		if err != nil {
			return "", err
		}
		return id.OwnerID, nil
	}
	if cfg.OwnerID == "" {
		return "", faults.New(faults.Auth, "", "no owner configured: set owner_id or pass --token")
	}
	return cfg.OwnerID, nil
}

func openBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "node":
		return blob.NewNodeClient(cfg.Blob.NodeURL, cfg.Blob.Token), nil
	default:
		return blob.NewCAS(filepath.Join(cfg.DataDir, "blobs"))
	}
}

func openPointerStore(ctx context.Context, cfg *config.Config, state kv.Store) (pointer.Store, error) {
	switch cfg.Pointer.Backend {
	case "dynamodb":
		return pointer.NewDynamoStore(ctx, cfg.Pointer.Region, cfg.Pointer.Table)
	default:
		return pointer.NewKVStore(state), nil
	}
}

func openPinProvider(cfg *config.Config) (pin.Provider, error) {
	if cfg.Pin.Provider == "local" {
		return pin.NewLocal(), nil
	}
	return pin.NewHTTPProvider(cfg.Pin.Provider, cfg.Pin.Endpoint, cfg.Pin.APIKey, cfg.Pin.APISecret)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
