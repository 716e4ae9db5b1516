package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphlens/internal/adapter"
	"graphlens/internal/server"
	"graphlens/internal/session"
	"graphlens/internal/suggest"
	"graphlens/pkg/config"
	"graphlens/pkg/logger"

	graphpkg "graphlens/internal/graph"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph chat server...")

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	reader := graphpkg.NewReader(driver, cfg.Neo4jDatabase)
	agentStream := adapter.NewAgentStream(cfg.AgentURL, time.Duration(cfg.AgentTimeout)*time.Second)

	sess := session.New(reader, agentStream, session.Options{
		ExpandDepth:  cfg.ExpandDepth,
		ExpandLimit:  cfg.ExpandLimit,
		ExtractDepth: cfg.ExtractDepth,
		ExtractLimit: cfg.ExpandLimit,
		ExtractIDCap: cfg.ExtractIDLimit,
	})
	defer sess.Close()

	suggestSvc := suggest.NewService(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelID, reader)

	srv := server.New(sess, reader, suggestSvc, log, cfg.IsProduction())
	sess.SetListeners(srv.Listeners())

	// Warm the schema cache and the initial graph snapshot. Both best-effort:
	// the endpoints refetch on demand.
	warmCtx, cancelWarm := context.WithTimeout(ctx, 30*time.Second)
	if _, err := reader.Schema(warmCtx); err != nil {
		log.Warn("Schema warmup failed", zap.Error(err))
	}
	if snapshot, err := reader.Neighborhood(warmCtx, "", 0, cfg.SnapshotLimit); err != nil {
		log.Warn("Initial snapshot failed", zap.Error(err))
	} else {
		sess.ReplaceGraph(snapshot)
		log.Info("Initial graph loaded",
			zap.Int("nodes", len(snapshot.Nodes)),
			zap.Int("relationships", len(snapshot.Relationships)),
		)
	}
	cancelWarm()

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
