package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"powerquality-backend/internal/analyses"
	googleauth "powerquality-backend/internal/auth"
	"powerquality-backend/internal/chat"
	"powerquality-backend/internal/llm"
	openaillm "powerquality-backend/internal/llm/openai"
	"powerquality-backend/internal/queue"
	"powerquality-backend/internal/services/health"
	"powerquality-backend/internal/shared/config"
	"powerquality-backend/internal/shared/server"
	"powerquality-backend/internal/shared/storage/db"
	"powerquality-backend/internal/shared/storage/object"
	localstore "powerquality-backend/internal/shared/storage/object/local"
	s3store "powerquality-backend/internal/shared/storage/object/s3"
	"powerquality-backend/internal/uploads"
	"powerquality-backend/internal/users"
)

const uploadsDefaultRegion = "us-east-1"

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	AnalysesRepo analyses.Repo
	ChatRepo     chat.Repo
	UsersRepo    users.Repo

	AnalysesService *analyses.Service
	ChatOrch        *chat.Orchestrator
	UsersService    *users.Service
	HealthService   *health.Service

	AnalysisHandler *analyses.Handler
	ChatHandler     *chat.Handler
	UploadsHandler  *uploads.Handler
	UsersHandler    *users.Handler
	GoogleAuth      *googleauth.GoogleService
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Health:          app.HealthService,
		AnalysisHandler: app.AnalysisHandler,
		ChatHandler:     app.ChatHandler,
		UploadsHandler:  app.UploadsHandler,
		UsersHandler:    app.UsersHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func buildUploadsPresign(ctx context.Context, cfg config.Config) (*s3.PresignClient, string, error) {
	if cfg.ObjectStoreType != "s3" || strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, "", nil
	}
	region := strings.TrimSpace(cfg.AWSRegion)
	if region == "" {
		region = uploadsDefaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, "", fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return s3.NewPresignClient(client), cfg.S3Bucket, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(ctx context.Context, app *App) error {
	var analysisRepo analyses.Repo
	var chatRepo chat.Repo
	var userRepo users.Repo

	if app.DB != nil {
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		chatRepo = &chat.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		analysisRepo = analyses.NewMemoryRepo()
		chatRepo = chat.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		client, err := openaillm.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			if !isDevLike(app.Config.Env) {
				return err
			}
			log.Printf("bootstrap: openai client unavailable; using placeholder: %v", err)
		} else {
			llmClient = client
		}
	}

	analysisSvc := &analyses.Service{
		Repo:  analysisRepo,
		Store: app.Store,
		Queue: app.Queue,
		LLM:   llmClient,
		Model: app.Config.LLMModel,
	}

	chatOrch := &chat.Orchestrator{
		Repo:     chatRepo,
		Analyses: analysisSvc,
		LLM:      llmClient,
		Hub:      chat.NewHub(),
	}

	userSvc := users.NewService(userRepo)
	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)

	presign, bucket, err := buildUploadsPresign(ctx, app.Config)
	if err != nil {
		return err
	}

	app.AnalysesRepo = analysisRepo
	app.ChatRepo = chatRepo
	app.UsersRepo = userRepo
	app.AnalysesService = analysisSvc
	app.ChatOrch = chatOrch
	app.UsersService = userSvc
	app.HealthService = &health.Service{DB: app.DB}
	app.AnalysisHandler = analyses.NewHandler(analysisSvc)
	app.ChatHandler = chat.NewHandler(chatOrch)
	app.UploadsHandler = uploads.NewHandler(presign, bucket)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleAuthSvc

	return nil
}
