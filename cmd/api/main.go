package main

import (
	"database/sql"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/config"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/currency"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/events"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/handler"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/logger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/middleware"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
	redisclient "github.com/daniel-torresc/emerald-backend-sub000/internal/redis"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/repository"
)

const accountCacheTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	redis, err := redisclient.NewClient(redisclient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redis.Close()

	publisher := events.NewPublisher(redis.Client)
	accountCache := redisclient.NewViewCache[models.Account](redis.Client, accountCacheTTL, log)

	users := repository.NewUserRepository(db)
	shares := repository.NewShareRepository(db)
	cards := repository.NewCardRepository(db)
	gate := repository.NewPermissionGate(db)
	runner := repository.NewTxRunner(db)

	svc := ledger.NewService(
		runner,
		repository.NewStores(db),
		shares,
		gate,
		cards,
		currency.NewCatalog(),
		publisher,
		accountCache,
		log,
	)

	secret := []byte(cfg.JWTSecret)
	authHandler := handler.NewAuthHandler(users, secret)
	accountHandler := handler.NewAccountHandler(svc)
	transactionHandler := handler.NewTransactionHandler(svc)
	cardHandler := handler.NewCardHandler(svc)
	auditHandler := handler.NewAuditHandler(svc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := router.Group("/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	v1 := router.Group("/v1", middleware.AuthMiddleware(secret))
	{
		v1.GET("/users/me", authHandler.Me)

		accounts := v1.Group("/accounts")
		{
			accounts.POST("", accountHandler.CreateAccount)
			accounts.GET("", accountHandler.ListAccounts)
			accounts.GET("/:accountId", accountHandler.GetAccount)
			accounts.PATCH("/:accountId", accountHandler.UpdateAccount)
			accounts.DELETE("/:accountId", accountHandler.DeleteAccount)
			accounts.POST("/:accountId/shares", accountHandler.ShareAccount)
			accounts.GET("/:accountId/balance/verify", accountHandler.VerifyBalance)
			accounts.GET("/:accountId/tags", accountHandler.ListTags)
			accounts.GET("/:accountId/audit", auditHandler.AccountAudit)
			accounts.POST("/:accountId/transactions", transactionHandler.CreateTransaction)
			accounts.GET("/:accountId/transactions", transactionHandler.ListTransactions)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("/:transactionId", transactionHandler.GetTransaction)
			transactions.PATCH("/:transactionId", transactionHandler.UpdateTransaction)
			transactions.DELETE("/:transactionId", transactionHandler.DeleteTransaction)
			transactions.POST("/:transactionId/split", transactionHandler.SplitTransaction)
			transactions.POST("/:transactionId/join", transactionHandler.JoinTransaction)
			transactions.GET("/:transactionId/children", transactionHandler.ListChildren)
			transactions.GET("/:transactionId/tags", transactionHandler.ListTransactionTags)
			transactions.POST("/:transactionId/tags", transactionHandler.AttachTag)
			transactions.DELETE("/:transactionId/tags/:tag", transactionHandler.DetachTag)
			transactions.GET("/:transactionId/audit", auditHandler.TransactionAudit)
		}

		cardRoutes := v1.Group("/cards")
		{
			cardRoutes.POST("", cardHandler.CreateCard)
			cardRoutes.GET("", cardHandler.ListCards)
		}
	}

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
