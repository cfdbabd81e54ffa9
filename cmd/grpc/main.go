package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fekuna/omnipos-lending-service/config"
	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/audit"
	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/loan"
	"github.com/fekuna/omnipos-lending-service/internal/loan/listcache"
	"github.com/fekuna/omnipos-lending-service/internal/memstore"
	"github.com/fekuna/omnipos-lending-service/internal/returns"
	"github.com/fekuna/omnipos-lending-service/pkg/broker"
	"github.com/fekuna/omnipos-lending-service/pkg/cache"
	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/middleware"
	"github.com/fekuna/omnipos-lending-service/pkg/observability"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"

	eqH "github.com/fekuna/omnipos-lending-service/internal/equipment/handler"
	eqListenerPkg "github.com/fekuna/omnipos-lending-service/internal/equipment/listener"
	eqRepoPkg "github.com/fekuna/omnipos-lending-service/internal/equipment/repository"
	eqUCPkg "github.com/fekuna/omnipos-lending-service/internal/equipment/usecase"

	loanH "github.com/fekuna/omnipos-lending-service/internal/loan/handler"
	loanRepoPkg "github.com/fekuna/omnipos-lending-service/internal/loan/repository"
	loanUCPkg "github.com/fekuna/omnipos-lending-service/internal/loan/usecase"

	retH "github.com/fekuna/omnipos-lending-service/internal/returns/handler"
	retRepoPkg "github.com/fekuna/omnipos-lending-service/internal/returns/repository"
	retUCPkg "github.com/fekuna/omnipos-lending-service/internal/returns/usecase"
)

var version = "dev"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 2.5 Initialize i18n
	translator := i18n.New()
	if err := apperr.RegisterMessages(translator); err != nil {
		appLogger.Fatal("Could not load error messages", zap.Error(err))
	}

	// 3. Initialize Tracing
	if cfg.Otel.Enabled {
		shutdown, err := observability.SetupTracingSDK(context.Background(), &observability.Config{
			ServiceName:    cfg.Otel.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.Otel.Endpoint,
			Insecure:       cfg.Otel.Insecure,
		})
		if err != nil {
			appLogger.Warn("Could not set up tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	// 4. Initialize Storage
	var (
		tx            postgres.Transactor
		equipmentRepo equipment.Repository
		loanRepo      loan.Repository
		returnRepo    returns.Repository
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := memstore.New()
		tx, equipmentRepo, loanRepo, returnRepo = store, store.Equipment(), store.Loans(), store.Returns()
		appLogger.Warn("Using in-memory storage; data is lost on restart")
	default:
		db, err := postgres.NewPostgres(&postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to database", zap.Error(err))
		}
		defer db.Close()
		appLogger.Info("Connected to PostgreSQL database",
			zap.String("db_name", cfg.Postgres.DBName),
			zap.String("tx_isolation", cfg.Postgres.TxIsolation))

		tx = postgres.NewTxManager(db, postgres.ParseIsolation(cfg.Postgres.TxIsolation))
		equipmentRepo = eqRepoPkg.NewPGRepository(db)
		loanRepo = loanRepoPkg.NewPGRepository(db)
		returnRepo = retRepoPkg.NewPGRepository(db)
	}

	// 5. Initialize Redis
	var (
		locker    eqUCPkg.Locker
		listCache *listcache.Cache
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Warn("Could not connect to Redis (list cache and admin lock disabled)", zap.Error(err))
		} else {
			defer redisClient.Close()
			locker = redisClient
			listCache = listcache.New(redisClient, cfg.Lending.ListCacheTTL, appLogger)
			appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 6. Initialize Kafka
	var emitter audit.Emitter = audit.NewLogEmitter(appLogger)
	var adminConsumer *broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AuditTopic,
		})
		defer producer.Close()
		emitter = audit.NewKafkaEmitter(producer)

		adminConsumer = broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AdminTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer adminConsumer.Close()
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("audit_topic", cfg.Kafka.AuditTopic),
			zap.String("admin_topic", cfg.Kafka.AdminTopic))
	}

	// 7. Initialize UseCases
	equipmentUC := eqUCPkg.NewEquipmentUseCase(tx, equipmentRepo, locker, appLogger)
	loanUC := loanUCPkg.NewLoanUseCase(tx, loanRepo, equipmentRepo, emitter, appLogger,
		loanUCPkg.WithListCache(listCache))
	returnUC := retUCPkg.NewReturnUseCase(tx, returnRepo, loanRepo, equipmentRepo,
		returns.NewCalculator(returns.Policy{
			LateFeePerDay: cfg.Lending.LateFeePerDay,
			FlatLateFee:   cfg.Lending.FlatLateFee,
		}),
		emitter, appLogger, retUCPkg.WithListCache(listCache))

	// 7.5 Start Listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if adminConsumer != nil {
		go eqListenerPkg.NewEquipmentListener(adminConsumer, equipmentUC, appLogger).Start(ctx)
	}

	// 8. Initialize Handlers
	equipmentHandler := eqH.NewEquipmentHandler(equipmentUC, translator, appLogger)
	loanHandler := loanH.NewLoanHandler(loanUC, translator, appLogger)
	returnHandler := retH.NewReturnHandler(returnUC, translator, appLogger)

	// 9. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(middleware.ContextInterceptor()),
	)

	eqH.Register(grpcServer, equipmentHandler)
	loanH.Register(grpcServer, loanHandler)
	retH.Register(grpcServer, returnHandler)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port), zap.String("storage", cfg.Storage.Driver))

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}
