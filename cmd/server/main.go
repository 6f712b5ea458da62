package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/api"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/config"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/history"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/logging"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/version"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	info := version.Get()
	logger.Info("Starting PV history server",
		zap.String("version", info.Version),
		zap.String("gitCommit", info.GitCommit),
		zap.String("goVersion", info.GoVersion),
		zap.String("addr", cfg.Server.Addr),
	)

	if err := run(logger, cfg); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, cfg *config.Config) error {
	model := pv.NewModel()
	if err := buildGraph(model, cfg.Variables); err != nil {
		return fmt.Errorf("build PV graph: %w", err)
	}

	hub := ws.NewHub(logger)

	recorder, err := history.New(logger, model, model.Root(), history.Options{
		HistoryLength:    cfg.Recorder.HistoryLength,
		HistoryTag:       cfg.Recorder.HistoryTag,
		EnableTimeStamps: cfg.Recorder.EnableTimeStamps,
		Prefix:           cfg.Recorder.Prefix,
		ModuleName:       cfg.Recorder.ModuleName,
		OnUpdate: func(name string) {
			hub.Broadcast(ws.Message{Type: "historyUpdate", Data: map[string]any{"input": name}})
		},
	})
	if err != nil {
		return fmt.Errorf("construct history module: %w", err)
	}
	if err := recorder.Prepare(); err != nil {
		return fmt.Errorf("prepare history module: %w", err)
	}

	apiServer := api.NewServer(logger, cfg, model, recorder, hub)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiServer.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildGraph creates the configured input variables in the PV graph.
func buildGraph(model *pv.Model, variables []config.VariableConfig) error {
	for _, v := range variables {
		valueType, err := pv.ParseValueType(v.Type)
		if err != nil {
			return fmt.Errorf("variable %q: %w", v.Path, err)
		}
		if _, err := model.CreateVariable(v.Path, valueType, v.Elements, v.Tags...); err != nil {
			return err
		}
	}
	return nil
}
