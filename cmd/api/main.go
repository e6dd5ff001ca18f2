package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/janvani/backend/internal/config"
	"github.com/zhouzirui/janvani/backend/internal/database"
	"github.com/zhouzirui/janvani/backend/internal/handler"
	"github.com/zhouzirui/janvani/backend/internal/metrics"
	"github.com/zhouzirui/janvani/backend/internal/middleware"
	"github.com/zhouzirui/janvani/backend/internal/model/casework"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	"github.com/zhouzirui/janvani/backend/internal/service/ai"
	"github.com/zhouzirui/janvani/backend/internal/service/bhashini"
	caseworkservice "github.com/zhouzirui/janvani/backend/internal/service/casework"
	"github.com/zhouzirui/janvani/backend/internal/service/chat"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
	"github.com/zhouzirui/janvani/backend/internal/service/speech"
	"github.com/zhouzirui/janvani/backend/internal/service/translation"
	"github.com/zhouzirui/janvani/backend/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	setupLogging(cfg.Log)

	catalog := language.NewMemoryStore(language.Seed())
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	bhashiniClient := bhashini.NewClient(bhashini.Config{
		UserID:     cfg.Bhashini.UserID,
		APIKey:     cfg.Bhashini.APIKey,
		PipelineID: cfg.Bhashini.PipelineID,
		ConfigURL:  cfg.Bhashini.ConfigURL,
		Timeout:    cfg.ProviderTimeout,
	}, httpClient)
	translator := translation.NewService(bhashiniClient, catalog)

	// Initialize AI service
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize chat model")
	}
	aiService, err := ai.NewService(ctx, chatModel, ai.Options{
		RetryOnce: cfg.AI.RetryOnce,
		Provider:  "ark",
		Timeout:   cfg.ProviderTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize AI service")
	}

	speechService, closeSpeech := newSpeechService(ctx, cfg, bhashiniClient, catalog)
	defer closeSpeech()

	sessions := chat.NewService(chat.Options{
		MaxSessions: cfg.Conversation.MaxSessions,
		MaxTurns:    cfg.Conversation.MaxTurnsPerSession,
		TTL:         cfg.Conversation.SessionTTL,
	})
	orchestrator := conversation.New(translator, aiService, sessions, catalog, conversation.Config{
		PivotLanguage: cfg.Conversation.PivotLanguage,
		HistoryLimit:  cfg.Conversation.HistoryLimit,
	}, conversation.WithDetector(aiService))

	caseworkService, closeCasework := newCaseworkService(ctx, cfg.Database)
	defer closeCasework()

	metrics.Register(func() float64 { return float64(sessions.Len()) })

	router := handler.NewRouter(handler.Deps{
		Catalog:        catalog,
		Conversation:   orchestrator,
		Translator:     translator,
		Speech:         speechService,
		Casework:       caseworkService,
		Sessions:       session.NewManager(cfg.Session.Secret, cfg.Session.CookieMaxAge, cfg.Session.CookieSecure),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	})

	startServer(ctx, cfg.Server, router)
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithError(err).Warnf("unknown LOG_LEVEL %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// newSpeechService 组装识别、合成与可选的 Redis 音频缓存。
func newSpeechService(ctx context.Context, cfg *config.Config, client *bhashini.Client, catalog language.Store) (*speech.Service, func()) {
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var recognizer speech.Recognizer = speech.NewBhashiniRecognizer(client, cfg.Speech.SampleRate)
	if cfg.Speech.ASRProvider == "google" {
		google, err := speech.NewGoogleRecognizer(ctx, cfg.Speech.SampleRate, cfg.ProviderTimeout)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize Google speech client")
		}
		closers = append(closers, func() { _ = google.Close() })
		recognizer = google
	}
	log.WithField("provider", recognizer.Name()).Info("speech recognizer ready")

	var opts []speech.Option
	if cfg.Speech.RedisURL != "" {
		cache, err := speech.NewRedisCache(ctx, cfg.Speech.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, TTS cache disabled")
		} else {
			closers = append(closers, func() { _ = cache.Close() })
			opts = append(opts, speech.WithCache(cache, cfg.Speech.CacheTTL))
			log.Info("TTS audio cache enabled")
		}
	}

	synthesizer := speech.NewBhashiniSynthesizer(client, cfg.Speech.SampleRate)
	return speech.NewService(recognizer, synthesizer, catalog, opts...), closeAll
}

// newCaseworkService 使用 MySQL；未配置 DSN 时退回内存存储。
func newCaseworkService(ctx context.Context, cfg config.DatabaseConfig) (*caseworkservice.Service, func()) {
	if !cfg.Enabled() {
		log.Info("MYSQL_DSN not set, complaints and applications kept in memory")
		return caseworkservice.NewService(casework.NewMemoryStore()), func() {}
	}

	db, err := database.Open(ctx, cfg.DSN, database.DefaultOptions())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	store := database.NewCaseworkStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("failed to prepare database schema")
	}
	return caseworkservice.NewService(store), func() { _ = db.Close() }
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("Janvani backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
