// Package main provides the scqueue CLI application entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"scqueue/internal/core"
	"scqueue/internal/deck"
	"scqueue/internal/flood"
	httpserver "scqueue/internal/http"
	"scqueue/internal/i18n"
	"scqueue/internal/mediahost"
	"scqueue/internal/player"
	"scqueue/internal/soundcloud"
	"scqueue/internal/stats"
	"scqueue/internal/store"
	"scqueue/internal/stream"
)

const envPrefix = "SCQUEUE"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scqueue",
	Short: "scqueue - SoundCloud likes and feed queue player",
	Long: `scqueue mixes your SoundCloud likes with your feed into one long-form queue
and plays it with automatic recovery of expired stream URLs.`,
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the player (default)",
	RunE:  runServe,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a queue and print it",
	RunE:  runGenerate,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print statistics about your likes",
	RunE:  runStats,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop the cached likes and feed collections",
	RunE:  runClearCache,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the client id and oauth token in the token file",
	RunE:  runLogin,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Message language (%s)", supportedLangs))
	flags.Int("flood-limit-per-minute", defaults.App.FloodLimitPerMinute, "Maximum queue generations per client per minute")

	flags.String("soundcloud-api-url", defaults.SoundCloud.APIBaseURL, "SoundCloud API base URL")
	flags.String("soundcloud-client-id", "", "SoundCloud client ID")
	flags.String("soundcloud-oauth-token", "", "SoundCloud OAuth token")
	flags.String("soundcloud-token-path", defaults.SoundCloud.TokenPath, "Token file used when no client ID or token is configured")
	flags.Int("soundcloud-page-size", defaults.SoundCloud.PageSize, "Items requested per collection page")
	flags.Int("soundcloud-feed-max-items", defaults.SoundCloud.FeedMaxItems, "Maximum number of feed items fetched")
	flags.Float64("soundcloud-requests-per-second", defaults.SoundCloud.RequestsPerSecond, "Collection requests per second")

	flags.Float64("queue-min-duration", defaults.Queue.MinDurationMin, "Minimum track duration in minutes")
	flags.Int("queue-feed-ratio", defaults.Queue.FeedRatio, "Feed tracks per interleave cycle (0-10)")
	flags.Int("queue-likes-ratio", defaults.Queue.LikesRatio, "Liked tracks per interleave cycle (1-10)")
	flags.Int64("queue-seed", 0, "Fix the shuffle seed of the first generated queue (0 is random)")

	flags.Int("playback-max-recovery-attempts", defaults.Playback.MaxRecoveryAttempts, "Stream URL re-resolutions per track")
	flags.Bool("playback-autoplay", defaults.Playback.Autoplay, "Start playback when a track is loaded")
	flags.Int("playback-resolve-timeout-secs", int(defaults.Playback.ResolveTimeout.Seconds()), "Stream resolve timeout in seconds")

	flags.String("store-path", defaults.Store.Path, "SQLite database path")
	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, generateCmd, statsCmd, clearCacheCmd, loginCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureSoundCloud(cfg)
	configureQueue(cfg)
	configurePlayback(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configureSoundCloud(cfg *core.Config) {
	cfg.SoundCloud.APIBaseURL = strings.TrimRight(viper.GetString("soundcloud-api-url"), "/")
	cfg.SoundCloud.ClientID = viper.GetString("soundcloud-client-id")
	cfg.SoundCloud.OAuthToken = viper.GetString("soundcloud-oauth-token")
	cfg.SoundCloud.TokenPath = viper.GetString("soundcloud-token-path")
	cfg.SoundCloud.PageSize = viper.GetInt("soundcloud-page-size")
	cfg.SoundCloud.FeedMaxItems = viper.GetInt("soundcloud-feed-max-items")
	cfg.SoundCloud.RequestsPerSecond = viper.GetFloat64("soundcloud-requests-per-second")
}

func configureQueue(cfg *core.Config) {
	cfg.Queue = core.QueueConfig{
		MinDurationMin: viper.GetFloat64("queue-min-duration"),
		FeedRatio:      viper.GetInt("queue-feed-ratio"),
		LikesRatio:     viper.GetInt("queue-likes-ratio"),
		Seed:           viper.GetInt64("queue-seed"),
	}.Coerced()
}

func configurePlayback(cfg *core.Config) {
	cfg.Playback.MaxRecoveryAttempts = viper.GetInt("playback-max-recovery-attempts")
	cfg.Playback.Autoplay = viper.GetBool("playback-autoplay")
	if secs := viper.GetInt("playback-resolve-timeout-secs"); secs > 0 {
		cfg.Playback.ResolveTimeout = time.Duration(secs) * time.Second
	}
	cfg.Store.Path = viper.GetString("store-path")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureApp(cfg *core.Config) {
	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}
	if !i18n.IsSupported(cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}

	cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

type services struct {
	store      *store.SQLiteStore
	creds      *soundcloud.Credentials
	metrics    *httpserver.Metrics
	controller *player.Controller
	deck       *deck.Deck
}

// initializeServices wires the store, the SoundCloud client, the player and the deck.
func initializeServices(ctx context.Context) (*services, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	st, err := store.OpenSQLite(ctx, config.Store.Path, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	metrics := httpserver.NewMetrics()
	creds := soundcloud.NewCredentials(config.SoundCloud, logger.Named("auth"))
	client := soundcloud.NewClient(config.SoundCloud, creds, logger.Named("soundcloud"))
	resolver := stream.NewResolver(stream.ResolverConfig{Timeout: config.Playback.ResolveTimeout},
		creds, metrics, logger.Named("resolver"))
	host := mediahost.New(mediahost.Config{}, logger.Named("mediahost"))
	controller := player.NewController(config.Playback, resolver, host, metrics, logger.Named("player"))
	d := deck.New(client, st, controller, metrics, config.Queue, config.Playback.Autoplay, logger.Named("deck"))

	return &services{
		store:      st,
		creds:      creds,
		metrics:    metrics,
		controller: controller,
		deck:       d,
	}, nil
}

func (s *services) close() {
	s.controller.Close()
	if err := s.store.Close(); err != nil {
		logger.Debug("Failed to close store", zap.Error(err))
	}
}

// restoreOrGenerate restores the saved queue, or generates one when credentials exist.
func (s *services) restoreOrGenerate(ctx context.Context, progress core.ProgressFunc) error {
	restored, err := s.deck.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore queue: %w", err)
	}
	if restored {
		snap := s.deck.Snapshot()
		logger.Info("Restored queue",
			zap.Int("entries", len(snap.Queue)),
			zap.Int("current_index", snap.CurrentIndex))
		return nil
	}

	auth, err := s.creds.Auth(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if !auth.Valid() {
		logger.Warn("No saved queue and no credentials; log in and generate a queue")
		return nil
	}

	_, err = s.deck.Generate(ctx, false, progress)
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting scqueue",
		zap.String("api", config.SoundCloud.APIBaseURL),
		zap.String("store", config.Store.Path),
		zap.String("language", config.App.Language))

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	progress := func(msg string) { logger.Info(msg) }
	if err := svcs.restoreOrGenerate(ctx, progress); err != nil {
		logger.Error("Initial queue generation failed", zap.Error(err))
	}

	gate := flood.New(config.App.FloodLimitPerMinute)

	server := httpserver.NewServer(&config.Server, svcs.deck, svcs.controller, svcs.metrics, gate,
		i18n.NewLocalizer(config.App.Language), logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})
	g.Go(func() error {
		return svcs.deck.Run(gCtx)
	})

	logger.Info("scqueue started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scqueue stopped with error", zap.Error(err))
		return err
	}

	logger.Info("scqueue stopped gracefully")
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	if _, err := svcs.deck.Restore(ctx); err != nil {
		return err
	}
	snap, err := svcs.deck.Generate(ctx, false, printProgress)
	if err != nil {
		return fmt.Errorf("failed to generate queue: %w", err)
	}

	out := cmd.OutOrStdout()
	for i, entry := range snap.Queue {
		fmt.Fprintf(out, "%4d. [%-5s] %s - %s (%s)\n", i+1, entry.Source,
			entry.Track.Artist, entry.Track.Title, stats.DurationLabel(entry.Track.DurationMs))
	}
	fmt.Fprintf(out, "\n%d tracks from %d likes and %d feed items\n",
		len(snap.Queue), snap.FavoritesCount, snap.FeedCount)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	if _, err := svcs.deck.Restore(ctx); err != nil {
		return err
	}
	if len(svcs.deck.Favorites()) == 0 {
		if _, err := svcs.deck.Generate(ctx, false, printProgress); err != nil {
			return fmt.Errorf("failed to load likes: %w", err)
		}
	}

	favorites := svcs.deck.Favorites()
	if len(favorites) == 0 {
		return errors.New(i18n.NewLocalizer(config.App.Language).T("error.stats.empty"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), stats.Render(stats.Compute(favorites)))
	return nil
}

func runClearCache(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := store.OpenSQLite(ctx, config.Store.Path, logger.Named("store"))
	if err != nil {
		return err
	}
	defer func() {
		_ = st.Close()
	}()

	if err := st.ClearCollections(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), i18n.NewLocalizer(config.App.Language).T("status.cache_cleared"))
	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	auth := core.Auth{
		ClientID:   config.SoundCloud.ClientID,
		OAuthToken: config.SoundCloud.OAuthToken,
	}
	if !auth.Valid() {
		return fmt.Errorf("both --soundcloud-client-id and --soundcloud-oauth-token are required: %w", core.ErrAuthMissing)
	}

	creds := soundcloud.NewCredentials(config.SoundCloud, logger.Named("auth"))
	if err := creds.Save(auth); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved credentials to %s\n", config.SoundCloud.TokenPath)
	return nil
}

func printProgress(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}
