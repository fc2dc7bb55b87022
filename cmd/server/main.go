package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/ai"
	"github.com/david/grant-matcher/internal/api"
	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/ingest"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/ratelimit"
	"github.com/david/grant-matcher/internal/recommend"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	store := db.NewStore(pool)

	c, err := cache.Open(os.Getenv("CACHE_PATH"), logger)
	if err != nil {
		logger.Fatal("cache open failed", zap.Error(err))
	}
	defer c.Close()

	limiter := ratelimit.New(envInt("AI_RATE_LIMIT", 100), time.Minute, 5*time.Second)
	defer limiter.Stop()

	aiClient := ai.NewOllamaClient(os.Getenv("OLLAMA_HOST"), os.Getenv("EMBED_MODEL"), os.Getenv("GEN_MODEL"))

	rules := match.DefaultRules()
	if path := os.Getenv("RULES_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("rules file unreadable", zap.String("path", path), zap.Error(err))
		}
		if rules, err = match.LoadRules(data); err != nil {
			logger.Fatal("rules file invalid", zap.String("path", path), zap.Error(err))
		}
	}

	recommender := recommend.New(store, c, limiter, logger,
		recommend.WithEmbedder(aiClient),
		recommend.WithExplainer(aiClient),
		recommend.WithRules(rules),
	)
	loader := ingest.NewLoader(store, aiClient, limiter, logger)

	srv, err := api.NewServer(store, recommender, loader, logger, api.Config{
		AdminSecret: os.Getenv("ADMIN_SECRET"),
		CORSOrigins: splitEnvList("CORS_ORIGINS"),
	})
	if err != nil {
		logger.Fatal("server setup failed", zap.Error(err))
	}

	go func() {
		logger.Info("server starting", zap.String("port", port))
		if err := srv.Start(port); err != nil {
			logger.Warn("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func splitEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
