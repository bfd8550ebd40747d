// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hearthware/hearth/lib/archive"
	"github.com/hearthware/hearth/lib/clock"
	"github.com/hearthware/hearth/lib/config"
	"github.com/hearthware/hearth/lib/dialogue"
	"github.com/hearthware/hearth/lib/kb"
	"github.com/hearthware/hearth/lib/llm"
	"github.com/hearthware/hearth/lib/retrieval"
	"github.com/hearthware/hearth/lib/secret"
	"github.com/hearthware/hearth/lib/service"
	"github.com/hearthware/hearth/lib/ticketstore"
	"github.com/hearthware/hearth/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		dbPath      string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to the hearth configuration file (YAML)")
	flag.StringVar(&socketPath, "socket", "", "unix socket path (overrides config)")
	flag.StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("hearth-dialogue-service %s\n", version.Info())
		return nil
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if socketPath != "" {
		cfg.Service.SocketPath = socketPath
	}
	if dbPath != "" {
		cfg.Service.DBPath = dbPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	// Knowledge base: articles feed the retrieval index, the denylist
	// feeds the input filter. The service runs without one, but every
	// reply is then canned and ungrounded.
	var (
		index    *retrieval.Index
		denylist []string
	)
	if cfg.Service.KBDir != "" {
		base, err := kb.Load(cfg.Service.KBDir)
		if err != nil {
			return fmt.Errorf("loading knowledge base: %w", err)
		}
		index = retrieval.NewIndex(base.Articles)
		denylist = base.Denylist
		logger.Info("knowledge base loaded",
			"dir", cfg.Service.KBDir,
			"articles", len(base.Articles),
			"denylist_terms", len(base.Denylist),
		)
	} else {
		logger.Warn("no knowledge base configured, replies will be canned")
	}

	if cfg.Dialogue.DenylistPath != "" {
		extra, err := kb.LoadDenylist(cfg.Dialogue.DenylistPath)
		if err != nil {
			return fmt.Errorf("loading denylist: %w", err)
		}
		denylist = append(denylist, extra...)
	}

	// LLM provider. Optional: without an API key the engine degrades
	// to canned replies, which keeps local development keyless.
	var generator llm.Provider
	if cfg.Generation.APIKeyPath != "" {
		apiKey, err := secret.ReadFromPath(cfg.Generation.APIKeyPath)
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
		defer apiKey.Close()
		generator = llm.NewAnthropic(llm.AnthropicConfig{
			BaseURL: cfg.Generation.BaseURL,
			APIKey:  apiKey,
		})
		logger.Info("generation enabled", "model", cfg.Generation.Model)
	} else {
		logger.Warn("no API key configured, replies will be canned")
	}

	store, err := ticketstore.Open(ticketstore.Config{
		Path:   cfg.Service.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening ticket store: %w", err)
	}
	defer store.Close()
	logger.Info("ticket store open", "db", cfg.Service.DBPath)

	// Transcript archiver. Optional: without a master key ended
	// conversations are dropped after their ticket (if any) is saved.
	var arch *archiver
	if cfg.Archive.MasterKeyPath != "" {
		sealer, err := openSealer(cfg.Archive)
		if err != nil {
			return err
		}
		defer sealer.Close()
		arch = newArchiver(store, sealer, clk, logger)
		logger.Info("transcript archival enabled", "compression", cfg.Archive.Compression)
	}

	engineConfig := dialogue.Config{
		GapThreshold:        cfg.Dialogue.GapThreshold,
		MaxRetries:          cfg.Dialogue.MaxValidationRetries,
		RetrievalK:          cfg.Dialogue.RetrievalK,
		IdleTimeout:         cfg.Dialogue.IdleTimeout,
		GenerationModel:     cfg.Generation.Model,
		GenerationMaxTokens: cfg.Generation.MaxTokens,
		GenerationAttempts:  cfg.Generation.MaxAttempts,
		GenerationBackoff:   cfg.Generation.RetryBackoff,
		Denylist:            denylist,
		Clock:               clk,
		Logger:              logger,
		Generator:           generator,
		Sink:                store,
	}
	if index != nil {
		engineConfig.Retriever = index
	}
	if arch != nil {
		engineConfig.OnSessionEnd = arch.enqueue
	}

	engine, err := dialogue.NewEngine(engineConfig)
	if err != nil {
		return fmt.Errorf("building dialogue engine: %w", err)
	}

	if arch != nil {
		go arch.run(ctx)
	}
	go engine.RunReaper(ctx)

	dialogueService := &DialogueService{
		engine:    engine,
		store:     store,
		index:     index,
		clock:     clk,
		logger:    logger,
		startedAt: clk.Now(),
	}

	socketServer := service.NewSocketServer(cfg.Service.SocketPath, logger)
	dialogueService.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	logger.Info("dialogue service running", "socket", cfg.Service.SocketPath)

	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket server to drain active connections, then
	// flush any transcripts still queued for archival.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	if arch != nil {
		arch.close()
	}

	return nil
}

// openSealer reads the hex-encoded master key and builds the
// transcript sealer.
func openSealer(cfg config.ArchiveConfig) (*archive.Sealer, error) {
	hexKey, err := secret.ReadFromPath(cfg.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading master key: %w", err)
	}
	defer hexKey.Close()

	raw, err := hex.DecodeString(hexKey.String())
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}

	// NewFromBytes copies into locked memory and zeros raw.
	masterKey, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("storing master key: %w", err)
	}

	compression, err := archive.ParseCompressionTag(cfg.Compression)
	if err != nil {
		masterKey.Close()
		return nil, err
	}

	sealer, err := archive.NewSealer(masterKey, compression)
	if err != nil {
		masterKey.Close()
		return nil, err
	}
	return sealer, nil
}
