package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pgloader "livequiz-service/internal/infra/postgres"
	redisstore "livequiz-service/internal/infra/redis"
	"livequiz-service/internal/store"
	transport "livequiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "livequiz").Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.TemplateLoader = memory.NewStaticTemplateLoader(sampleTemplates())
	if pool != nil {
		loader = pgloader.NewTemplateLoader(pool)
	}

	templateTTL := config.TTLDuration(cfg.Template.TTL, 10*time.Minute)
	var templates app.TemplateRepository
	if redisClient != nil {
		templates = redisstore.NewTemplateRepository(redisClient, loader, templateTTL)
	} else {
		templates = memory.NewTemplateRepository(loader, templateTTL)
	}

	var adapter store.Adapter
	if redisClient != nil {
		adapter = redisstore.NewStore(redisClient, redisTTL)
	} else {
		adapter = memory.NewStore()
	}
	service := app.NewSessionService(adapter, templates)
	service.SetReactionWindow(config.TTLDuration(cfg.Reaction.Window, app.DefaultReactionWindow))
	wsHandler := transport.NewWSHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTemplates provides demo content for running without Postgres; it covers
// every question kind the engine supports.
func sampleTemplates() map[string]domain.QuizTemplate {
	return map[string]domain.QuizTemplate{
		"demo-1": {
			ID:    "demo-1",
			Title: "All-hands icebreaker",
			Questions: []domain.Question{
				{
					Text:             "What is 2 + 2?",
					TimeLimitSeconds: 30,
					Kind:             domain.KindSingleChoice,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", IsCorrect: true},
						{Text: "5"},
					},
				},
				{
					Text:             "Which of these are prime?",
					TimeLimitSeconds: 45,
					Kind:             domain.KindMultipleChoice,
					Options: []domain.Option{
						{Text: "2", IsCorrect: true},
						{Text: "4"},
						{Text: "5", IsCorrect: true},
						{Text: "9"},
					},
				},
				{
					Text: "One word to describe this quarter",
					Kind: domain.KindWordCloud,
				},
				{
					Text: "What should we improve next quarter?",
					Kind: domain.KindOpenEnded,
				},
			},
			ParticipantFields: []domain.FieldSpec{
				{Key: "name", Label: "Full Name", Kind: "text", Required: true},
				{Key: "team", Label: "Team", Kind: "text", Required: false},
			},
		},
	}
}
