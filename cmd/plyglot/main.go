package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fmmr/plyglot/pkg/chat"
	"github.com/fmmr/plyglot/pkg/config"
	"github.com/fmmr/plyglot/pkg/history"
	"github.com/fmmr/plyglot/pkg/server"
	"github.com/fmmr/plyglot/pkg/translate"
	"github.com/fmmr/plyglot/pkg/usage"
)

var version = "dev"

func main() {
	var (
		configPath string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "plyglot",
		Short: "Realtime translation and conversation relay",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			setupLogging(cfg.LogLevel)
			return serve(cmd.Context(), cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("plyglot " + version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)
	rootCmd.RunE = serveCmd.RunE // bare invocation serves

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.LoadEnv(), nil
	}
	return config.Load(path)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return errors.New("no provider API key configured (set OPENAIKEY or provider.api_key)")
	}

	tracker := usage.NewTracker()

	var gatewayOpts []translate.GatewayOption
	if cfg.UsageDB != "" {
		journal, err := usage.OpenJournal(cfg.UsageDB)
		if err != nil {
			return errors.Wrap(err, "open usage journal")
		}
		defer func() { _ = journal.Close() }()
		gatewayOpts = append(gatewayOpts, translate.WithJournal(journal))
		log.Info().Str("path", cfg.UsageDB).Msg("usage journal enabled")
	}

	gateway := translate.NewGateway(
		openai.NewClient(cfg.Provider.APIKey),
		tracker,
		translate.Config{
			TranslationModel:  cfg.Models.Translation,
			ConversationModel: cfg.Models.Conversation,
			NormalTemperature: cfg.Chat.NormalTemperature,
			PoeticTemperature: cfg.Chat.PoeticTemperature,
			MaxTokens:         cfg.Chat.MaxTokens,
			ExtendedLanguages: cfg.Chat.ExtendedLanguages,
		},
		gatewayOpts...,
	)

	store := history.NewStore(cfg.Chat.MaxHistoryLength)
	router := chat.NewRouter(store, gateway, tracker)
	defer func() { _ = router.Close() }()

	srv := server.New(router, tracker).BuildHTTPServer(cfg.Listen.Address, cfg.Listen.Port)

	log.Info().
		Int("port", cfg.Listen.Port).
		Strs("languages", gateway.SupportedLanguages()).
		Str("translation_model", cfg.Models.Translation).
		Str("conversation_model", cfg.Models.Conversation).
		Msg("plyglot server starting")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
