package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"seedling/internal/answer"
	"seedling/internal/api"
	"seedling/internal/config"
	"seedling/internal/extract"
	"seedling/internal/graph"
	"seedling/internal/knowledge"
	"seedling/internal/learning"
	"seedling/internal/provider"
	"seedling/internal/research"
	"seedling/internal/rethink"
	"seedling/internal/scheduler"
	"seedling/internal/search"
	"seedling/internal/storage"
)

const dictionaryAPIURL = "https://api.dictionaryapi.dev/api/v2/entries/en"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the seedling server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "seedling.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// serverRefiner binds the refinery's Start to the server's lifetime context
// so a refinement loop outlives the request that scheduled it.
type serverRefiner struct {
	ctx      context.Context
	refinery *scheduler.Refinery
}

func (s *serverRefiner) Start(topic string) error { return s.refinery.Start(s.ctx, topic) }
func (s *serverRefiner) Stop(topic string)        { s.refinery.Stop(topic) }
func (s *serverRefiner) Status(topic string) (string, string, bool) {
	return s.refinery.Status(topic)
}

// recoveringRethinker retries the whole rethink pipeline a bounded number of
// times, stopping early as soon as an attempt improves on the wrong answer.
type recoveringRethinker struct {
	engine   *rethink.Engine
	recovery *scheduler.Recovery
}

func (r *recoveringRethinker) Rethink(ctx context.Context, prompt, wrongAnswer string, emit rethink.EmitFunc) string {
	out := r.recovery.Run(ctx, wrongAnswer, func(ctx context.Context, _ int) (string, error) {
		return r.engine.Rethink(ctx, prompt, wrongAnswer, emit), nil
	})
	return out.Answer
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "seedling version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	log := slog.Default()

	if cfg.API.Token == "" {
		return errors.New("API bearer token not set; export SEEDLING_API_TOKEN")
	}

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file is only for reporting who holds the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("seedling is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("seedling is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Provider chains. The local engine is the last link of both and the
	// only embedding source; cloud providers with no API key are skipped.
	local := provider.NewLocal(cfg.Local.BaseURL, cfg.Local.ChatModel, cfg.Local.EmbedModel)
	if !local.IsRunning(ctx) {
		printWarning("local inference engine not reachable at %s; cloud providers only", cfg.Local.BaseURL)
	}

	var qualityGens, fastGens []provider.Generator
	if cfg.Gemini.APIKey != "" {
		qualityGens = append(qualityGens, provider.NewGemini(cfg.Gemini.BaseURL, cfg.Gemini.Model, cfg.Gemini.APIKey))
	}
	if cfg.Groq.APIKey != "" {
		groq := provider.NewGroq(cfg.Groq.BaseURL, cfg.Groq.Model, cfg.Groq.APIKey)
		qualityGens = append(qualityGens, groq)
		fastGens = append(fastGens, groq)
	}
	qualityGens = append(qualityGens, local)
	fastGens = append(fastGens, local)
	quality := provider.NewChain(log, qualityGens...)
	fast := provider.NewChain(log, fastGens...)
	log.Info("provider chains ready", "quality", quality.Names(), "fast", fast.Names())

	// Knowledge base: relational store plus vector index over the same file.
	embedder := provider.NewEmbedder(local)
	index := knowledge.NewSQLiteIndex(store.DB(), embedder)
	base := knowledge.NewBase(store, index, log)

	// Web search chain.
	searchers := []search.Searcher{search.NewDuckDuckGo(cfg.Search.DuckDuckGoURL)}
	if cfg.Search.GoogleAPIKey != "" && cfg.Search.GoogleCX != "" {
		searchers = append(searchers, search.NewGoogleCSE(cfg.Search.GoogleURL, cfg.Search.GoogleAPIKey, cfg.Search.GoogleCX))
	}
	web := search.NewChain(log, cfg.Search.MinChars, searchers...)

	// Research + answering.
	researcher := research.New(web, quality, log)
	extractor := extract.New(extract.NewLLMSource(fast), log)
	synth := answer.NewSynthesizer(index, extractor, base, store, cfg.Answer.Threshold, log)

	// Optional relationship graph. An empty URI leaves graphStore nil and
	// every graph write a no-op.
	graphStore, err := graph.Connect(ctx, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, log)
	if err != nil {
		return fmt.Errorf("connecting graph store: %w", err)
	}
	defer graphStore.Close(context.Background())

	// Learning cycles.
	cycle := learning.NewCycle(learning.Deps{
		Store:      store,
		Base:       base,
		Researcher: researcher,
		Fast:       fast,
		Quality:    quality,
		Relator:    learning.NewRelator(fast, store, graphStore, log),
		Validator:  learning.NewDictionaryValidator(dictionaryAPIURL),
		Gate:       learning.NewGate(time.Minute, nil),
		Log:        log,
	}, learning.Options{
		QuickBatch:  cfg.Learning.QuickBatch,
		DeepenCount: cfg.Learning.DeepenCount,
	})

	// Background job scheduler.
	batchDeadline, err := time.ParseDuration(cfg.Learning.BatchDeadline)
	if err != nil {
		log.Warn("invalid batch deadline, using default 10m", "value", cfg.Learning.BatchDeadline, "error", err)
		batchDeadline = 10 * time.Minute
	}
	var reconcileTask *scheduler.ReconcileTask
	var finalizeTask *scheduler.FinalizeTask
	if graphStore != nil {
		reconcileTask = scheduler.NewReconcileTask(store, graphStore, log)
		finalizeTask = scheduler.NewFinalizeTask(store, base, graphStore, log)
	}
	sched := scheduler.New(store, cycle, reconcileTask, finalizeTask, scheduler.Options{
		BatchDeadline: batchDeadline,
		BatchPerRound: cfg.Learning.BatchPerRound,
	}, log)
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped", "error", err)
		}
	}()

	// Per-topic refinement and feedback-driven rethink with recovery.
	refinery := scheduler.NewRefinery(5*time.Minute, cycle.Refine, log)
	defer refinery.StopAll()

	rethinker := &recoveringRethinker{
		engine:   rethink.NewEngine(quality, fast, researcher, log),
		recovery: scheduler.NewRecovery(3, 5*time.Second, log),
	}

	// HTTP surface.
	appHandler := api.NewAppHandler(api.AppDeps{
		Store:     store,
		Answerer:  synth,
		Rethinker: rethinker,
		Stats:     base,
		Forgetter: base,
		Refiner:   &serverRefiner{ctx: ctx, refinery: refinery},
		Token:     cfg.API.Token,
		Log:       log,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// MCP server over stdio, in a goroutine.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Answerer:  synth,
		Rethinker: rethinker,
		Stats:     base,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("MCP stdio server error", "error", err)
		}
	}()
	log.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "seedling listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
