package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matrixbot/internal/bot"
	"matrixbot/internal/bus"
	"matrixbot/internal/command"
	"matrixbot/internal/config"
	"matrixbot/internal/domain"
	"matrixbot/internal/index"
	"matrixbot/internal/matrix"
	"matrixbot/internal/metrics"
	"matrixbot/internal/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "matrixbot",
		Short: "matrixbot: a Matrix chat-room automation bot",
		Long:  "matrixbot dispatches chat commands, indexes room history, and routes generated images between rooms.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.matrixbot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the homeserver and serve commands",
		RunE:  runBot,
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := store.NewSQLiteStore(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer ledger.Close()

	roomIndex, err := index.NewSQLiteIndex(cfg.Index.Path, logger)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer roomIndex.Close()

	client := matrix.NewClient(matrix.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		MediaURL:    cfg.Matrix.MediaURL,
		AccessToken: cfg.Matrix.AccessToken,
		UserID:      cfg.Matrix.UserID,
		Logger:      logger,
	})
	if cfg.Matrix.AccessToken != "" {
		if err := client.WhoAmI(ctx); err != nil {
			return fmt.Errorf("verify access token: %w", err)
		}
	} else {
		if err := client.Login(ctx, cfg.Matrix.UserID, cfg.Matrix.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	logger.Info("authenticated", "user", client.UserID(), "homeserver", cfg.Matrix.Homeserver)

	resolver := bot.NewRoomResolver(client, roomIndex, logger)
	images := bot.NewImageSender(client, ledger, cfg.LinkHost, logger)

	registry := bot.NewRegistry(logger)
	registry.MustRegister(
		command.NewSearch(),
		command.NewRandCaps(cfg.Blacklist),
		command.NewZow(),
		command.NewMaze(),
		command.NewDiffusion(cfg.Diffusion, logger),
		command.NewImageChannel(cfg.Admin.RootUserID),
	)
	logger.Info("commands registered", "triggers", registry.Triggers())

	eventBus := bus.New(cfg.Dispatcher.BufferSize, logger)
	defer eventBus.Close()

	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		Registry:      registry,
		Ledger:        ledger,
		Client:        client,
		Mappings:      ledger,
		Index:         roomIndex,
		Resolver:      resolver,
		Images:        images,
		LinkHost:      cfg.LinkHost,
		Logger:        logger,
		MaxConcurrent: cfg.Dispatcher.MaxConcurrent,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dispatcher.Run(gctx, eventBus.Subscribe())
		return nil
	})

	g.Go(func() error {
		err := client.Sync(gctx,
			func(ev domain.Event) { eventBus.Publish(ev) },
			func(roomID string, ev matrix.RoomEvent) { ingest(gctx, roomIndex, roomID, ev) },
		)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	if cfg.AutoJoin.Enabled {
		worker := bot.NewAutoJoinWorker(bot.AutoJoinConfig{
			Client:         client,
			Resolver:       resolver,
			PageLimit:      cfg.AutoJoin.PageLimit,
			StartDelay:     time.Duration(cfg.AutoJoin.StartDelaySeconds) * time.Second,
			JoinsPerMinute: cfg.AutoJoin.JoinsPerMinute,
			JoinBurst:      cfg.AutoJoin.JoinBurst,
			Logger:         logger,
		})
		g.Go(func() error {
			// auto-join is best effort; its failure never takes the bot down
			if err := worker.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Error("auto-join worker failed", "err", err)
			}
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Collector.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", "err", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("bot started. Press Ctrl+C to stop.")
	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// ingest feeds synced events into the local room index: alias state for
// the resolver, message bodies for search and quote sampling.
func ingest(ctx context.Context, idx *index.SQLiteIndex, roomID string, ev matrix.RoomEvent) {
	switch ev.Type {
	case "m.room.canonical_alias":
		var content struct {
			Alias      string   `json:"alias"`
			AltAliases []string `json:"alt_aliases"`
		}
		if err := json.Unmarshal(ev.Content, &content); err != nil {
			logger.Warn("bad canonical_alias content", "room", roomID, "err", err)
			return
		}
		if err := idx.RecordAliases(ctx, roomID, content.Alias, content.AltAliases); err != nil {
			logger.Warn("alias ingestion failed", "room", roomID, "err", err)
		}
	case "m.room.message":
		var content struct {
			MsgType string `json:"msgtype"`
			Body    string `json:"body"`
		}
		if err := json.Unmarshal(ev.Content, &content); err != nil || content.MsgType != "m.text" {
			return
		}
		err := idx.RecordMessage(ctx, domain.IndexedMessage{
			EventID:  ev.EventID,
			RoomID:   roomID,
			Sender:   ev.Sender,
			Body:     content.Body,
			OriginTS: ev.OriginServerTS,
		})
		if err != nil {
			logger.Warn("message ingestion failed", "event", ev.EventID, "err", err)
		}
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
