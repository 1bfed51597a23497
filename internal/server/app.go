package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/newsdesk/apiserver/config"
	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/internal/db"
	"github.com/newsdesk/apiserver/internal/events"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the services and the backing connections they share.
type App struct {
	Accounts *services.AccountService
	Articles *services.ArticleService
	MQ       *mq.MQ

	sqlDB       *sql.DB
	mongoClient *mongo.Client
}

// NewApp connects the configured database, object storage and broker and
// builds the services on top of them.
func NewApp(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{}
	var accountRepo services.AccountRepository
	var articleRepo services.ArticleRepository

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.sqlDB = dbConn
		accountRepo = store.NewAccountRepository(dbConn)
		articleRepo = store.NewArticleRepository(dbConn)
	case config.DriverMongo:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		app.mongoClient = client
		mongoAccounts := store.NewMongoAccountRepository(database)
		mongoArticles := store.NewMongoArticleRepository(database)
		if err := mongoAccounts.EnsureIndexes(ctx); err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("ensure account indexes: %w", err)
		}
		if err := mongoArticles.EnsureIndexes(ctx); err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("ensure article indexes: %w", err)
		}
		accountRepo = mongoAccounts
		articleRepo = mongoArticles
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		accountRepo = store.NewMemoryAccountRepository()
		articleRepo = store.NewMemoryArticleRepository()
	}

	objectStorage, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if objectStorage == nil {
		logger.Info("object storage not configured, image uploads disabled")
	}

	broker, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("init mq: %w", err)
	}
	app.MQ = broker
	if broker == nil {
		logger.Info("message queue not configured, events disabled")
	}
	publisher := events.NewPublisher(broker, cfg.MQ.EventsChannel, logger)

	lockout := auth.LockoutPolicy{
		MaxAttempts:  cfg.Auth.MaxLoginAttempts,
		LockDuration: cfg.Auth.LockDuration,
	}
	app.Accounts = services.NewAccountService(
		accountRepo,
		auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		lockout,
		publisher,
		logger,
	)
	app.Articles = services.NewArticleService(articleRepo, objectStorage, publisher, logger)
	return app, nil
}

// Close releases every connection held by the app.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.MQ != nil {
		errs = append(errs, a.MQ.Close())
	}
	if a.sqlDB != nil {
		errs = append(errs, a.sqlDB.Close())
	}
	if a.mongoClient != nil {
		errs = append(errs, a.mongoClient.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
