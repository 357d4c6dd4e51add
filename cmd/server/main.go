package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"wallet-link.backend/internal/config"
	"wallet-link.backend/internal/infrastructure/blockchain"
	"wallet-link.backend/internal/infrastructure/ipfs"
	"wallet-link.backend/internal/infrastructure/jobs"
	"wallet-link.backend/internal/infrastructure/repositories"
	"wallet-link.backend/internal/interfaces/http/handlers"
	"wallet-link.backend/internal/interfaces/http/middleware"
	"wallet-link.backend/internal/usecases"
	"wallet-link.backend/pkg/ethsig"
	"wallet-link.backend/pkg/jwt"
	"wallet-link.backend/pkg/logger"
	"wallet-link.backend/pkg/mailbox"
	"wallet-link.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	newCodeStore         = redis.NewCodeStore
	newMarketplaceClient = blockchain.NewMarketplaceClient
	runServer            = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB             = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database using GORM
	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("⚠️ Database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("✅ Connected to PostgreSQL via GORM")
	}

	// Client token cookie signer
	tokenService := jwt.NewClientTokenService(
		cfg.Security.ClientTokenSecret,
		cfg.Linking.ClientTokenExpiry,
	)

	// Repositories
	linkRepo := repositories.NewLinkRepository(db)
	endpointRepo := repositories.NewNotificationEndpointRepository(db)
	referralRepo := repositories.NewReferralRepository(db)
	userInfoRepo := repositories.NewUserInfoRepository(db)

	// Pairing code store
	codeStore, err := newCodeStore(cfg.Security.CodeEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize code store: %w", err)
	}

	// Hot wallet signer, optional
	var signer *ethsig.KeySigner
	if cfg.HotWallet.PrivateKey != "" {
		signer, err = ethsig.NewKeySigner(cfg.HotWallet.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to load hot wallet key: %w", err)
		}
		log.Printf("✅ Hot wallet loaded: %s", signer.Address())
	} else {
		log.Println("⚠️ No hot wallet key configured, co-sign endpoints disabled")
	}

	// Marketplace contract client
	chain, err := newMarketplaceClient(cfg.Marketplace.RPCURL, cfg.Marketplace.ContractAddress, signer)
	if err != nil {
		return fmt.Errorf("failed to connect to chain rpc: %w", err)
	}

	ipfsClient := ipfs.NewClient(cfg.Marketplace.IPFSGateway)
	verifier := ethsig.NewVerifier()

	mbox := mailbox.New(mailbox.Options{
		MaxMessages: cfg.Linking.MailboxMaxCount,
		MaxAge:      cfg.Linking.MailboxMaxAge,
	})

	// Usecases
	linkerUsecase := usecases.NewLinkerUsecase(linkRepo, endpointRepo, codeStore, mbox, cfg.Linking.CodeTTL)
	var hotSigner ethsig.Signer
	if signer != nil {
		hotSigner = signer
	}
	hotUsecase := usecases.NewHotWalletUsecase(chain, chain, hotSigner, verifier, ipfsClient, ipfs.HashCodec{})
	webrtcUsecase := usecases.NewWebRTCUsecase(verifier, hotUsecase, chain, endpointRepo,
		referralRepo, userInfoRepo, ipfsClient, cfg.Marketplace.WebrtcAuthWindow)

	// rebuild the active link cache after restart
	if err := linkerUsecase.WarmCache(context.Background()); err != nil {
		log.Printf("⚠️ Could not warm link cache: %v", err)
	}

	// Handlers
	serverInfo := handlers.ServerInfo{
		ContractAddress: chain.ContractAddress(),
		ContractVersion: cfg.Marketplace.ContractVersion,
		NetworkID:       cfg.Marketplace.NetworkID,
		VerifierAddress: hotUsecase.Address(),
		IPFSGateway:     cfg.Marketplace.IPFSGateway,
	}
	linkHandler := handlers.NewLinkHandler(linkerUsecase, tokenService, serverInfo, cfg.Linking.NotifyToken)
	webrtcHandler := handlers.NewWebRTCHandler(webrtcUsecase, hotUsecase)
	hotHandler := handlers.NewHotWalletHandler(hotUsecase)
	wsHandler := handlers.NewWSHandler(linkerUsecase, webrtcUsecase)

	// Background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	housekeepingJob := jobs.NewHousekeepingJob(mbox, endpointRepo)
	go housekeepingJob.Start(ctx)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ClientTokenMiddleware(tokenService))

	applyCORSMiddleware(r)
	registerHealthRoute(r)
	registerRoutes(r, routeDeps{
		linkHandler:   linkHandler,
		webrtcHandler: webrtcHandler,
		hotHandler:    hotHandler,
		wsHandler:     wsHandler,
	})

	log.Println("📋 Registered Routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down server...")
		housekeepingJob.Stop()
		cancel()
	}()

	log.Printf("🚀 Server starting on port %s", cfg.Server.Port)
	return runServer(r, cfg.Server.Port)
}
