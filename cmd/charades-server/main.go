package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"techcharades/internal/config"
	"techcharades/internal/dict"
	"techcharades/internal/engine"
	"techcharades/internal/httpapi"
	"techcharades/internal/leaderboard"
	"techcharades/internal/letters"
	"techcharades/internal/obslog"
	"techcharades/internal/results"
	"techcharades/internal/review"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	dictionary, err := dict.Load(cfg.DictPath)
	if err != nil {
		log.Fatalf("dictionary load error: %v", err)
	}
	var classifier dict.Classifier = dictionary
	if cfg.ClassifierURL != "" {
		classifier = dict.NewRemote(cfg.ClassifierURL)
		obslog.L().Info("remote_classifier_enabled", zap.String("url", cfg.ClassifierURL))
	}

	var repo results.Repository
	var closeRepo func() error
	if cfg.DatabaseURL != "" {
		pgRepo, db, err := results.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres init error: %v", err)
		}
		repo = pgRepo
		closeRepo = db.Close
	} else {
		obslog.L().Warn("no_database_url", zap.String("fallback", "in-memory results"))
		repo = results.NewMemoryRepository()
	}

	games := engine.NewManager(engine.Config{
		Duration:     cfg.GameDuration,
		TickInterval: cfg.TickInterval,
		MaxRounds:    cfg.MaxRounds,
	}, letters.NewSource(cfg.Alphabet), classifier, repo)

	var board *leaderboard.Board
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url error: %v", err)
		}
		rdb := redis.NewClient(opts)
		games.AttachLiveStore(engine.NewLiveStore(rdb))
		board = leaderboard.NewBoard(rdb)
		games.AttachLeaderboard(board)
	} else {
		obslog.L().Warn("no_redis_url", zap.String("disabled", "live store and leaderboard"))
	}

	reviewStore := review.NewStore(repo)
	matcher := review.NewMatcher(repo, reviewStore)

	srv := httpapi.New(games, repo, reviewStore, matcher, board, cfg.AdminToken)

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("server_start",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("max_rounds", cfg.MaxRounds),
			zap.Duration("round_duration", cfg.GameDuration),
			zap.Int("dict_terms", dictionary.Size()),
		)
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		obslog.L().Error("server_error", zap.Error(err))
	}

	games.Close()
	if closeRepo != nil {
		_ = closeRepo()
	}
}
