package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"consigliere/internal/config"
	"consigliere/internal/console"
	"consigliere/internal/game"
	"consigliere/internal/narrator"
	"consigliere/internal/router"
	"consigliere/internal/scheduler"
	"consigliere/internal/store"
	"consigliere/internal/telegram"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "consigliere",
	Short: "consigliere - a narrative game master for group chats",
	Long: `consigliere runs a daily crime-syndicate story in a group chat.

The Don poses a situation, the crew replies, and the Don resolves the day
from whatever the crew actually said. State is per chat and survives
restarts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Telegram and run the game",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a local single-player table in the terminal",
	Long: `play runs the same game loop against a terminal instead of Telegram.

No bot token is needed. Without a narrator API key the Don speaks in
stock phrases, which is enough to exercise the mechanics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("consigliere %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "consigliere.yaml", "Path to config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildEngine assembles the pieces every mode shares: store, session
// manager, narrator, themes.
func buildEngine(ctx context.Context, cfg *config.Config, channel game.Channel) (*game.Engine, *game.Manager, *game.Catalog, func(), error) {
	db, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open state store: %w", err)
	}

	sessions := game.NewManager(db, logger)
	if err := sessions.WarmStart(ctx); err != nil {
		logger.Warn("warm start incomplete", zap.Error(err))
	}

	teller, err := narrator.New(ctx, narrator.Options{
		Provider: cfg.Narrator.Provider,
		APIKey:   cfg.Narrator.APIKey,
		Model:    cfg.Narrator.Model,
		BaseURL:  cfg.Narrator.BaseURL,
		Timeout:  cfg.NarratorTimeout(),
	}, logger)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, fmt.Errorf("narrator: %w", err)
	}

	themes := game.NewCatalog(cfg.Themes.Dir, logger)

	settings := game.Settings{
		ResponseWindow: cfg.ResponseWindow(),
		ResponseQuota:  cfg.Game.ResponseQuota,
		GraceDelay:     cfg.GraceDelay(),
		VoteWindow:     cfg.VoteWindow(),
		HistoryContext: cfg.Game.HistoryContext,
		DialogContext:  cfg.Game.DialogContext,
		SidelineChance: cfg.Game.SidelineChance,
		SidelineDays:   cfg.Game.SidelineDays,
	}
	engine := game.NewEngine(sessions, teller, channel, themes, settings, logger)

	cleanup := func() {
		engine.Close()
		if err := db.Close(); err != nil {
			logger.Warn("closing state store", zap.Error(err))
		}
	}
	return engine, sessions, themes, cleanup, nil
}

func runBot(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram bot token not configured (set TELEGRAM_BOT_TOKEN)")
	}

	client, err := telegram.NewClient(telegram.ClientConfig{
		Token:       cfg.Telegram.Token,
		BaseURL:     cfg.Telegram.BaseURL,
		PollTimeout: cfg.PollTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}
	self, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("connected to telegram", zap.String("username", self.Username))

	engine, sessions, themes, cleanup, err := buildEngine(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer cleanup()

	rt := router.New(engine, sessions, client, logger)
	rt.SetBotUsername(self.Username)

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, using UTC", zap.String("timezone", cfg.Schedule.Timezone))
		loc = time.UTC
	}
	sched := scheduler.New(engine, scheduler.Options{
		Location:      loc,
		MorningHour:   cfg.Schedule.MorningHour,
		EveningHour:   cfg.Schedule.EveningHour,
		Jitter:        cfg.TriggerJitter(),
		SweepInterval: cfg.SweepInterval(),
	}, logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return client.Poll(ctx, rt.HandleUpdate)
	})
	group.Go(func() error {
		return sched.Run(ctx)
	})
	if cfg.Themes.HotReload {
		group.Go(func() error {
			return themes.Watch(ctx)
		})
	}

	logger.Info("consigliere running", zap.String("version", version))
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runPlay(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	channel := console.NewChannel()
	engine, sessions, _, cleanup, err := buildEngine(ctx, cfg, channel)
	if err != nil {
		return err
	}
	defer cleanup()

	rt := router.New(engine, sessions, channel, logger)

	model := console.NewModel(channel, func(u router.Update) {
		rt.HandleUpdate(ctx, u)
	})
	program := tea.NewProgram(model)
	channel.Attach(program)

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
