package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos/internal/config"
	"pos/internal/handler"
	"pos/internal/infra/cache"
	"pos/internal/infra/db"
	infraRepo "pos/internal/infra/repository"
	"pos/internal/logger"
	"pos/internal/repository"
	"pos/internal/server"
	"pos/internal/telemetry"
	"pos/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	//.env はあれば読む
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	//DB接続
	gormDB, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(gormDB); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
	}

	//冪等キーの同時実行ガード
	var idem repository.IdempotencyGuard = cache.NoopIdempotencyGuard{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, idempotency guard disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			idem = cache.NewRedisIdempotencyGuard(rdb, cfg.IdempotencyTTL)
		}
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	transactionRepo := infraRepo.NewTransactionGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := usecase.UUIDGenerator{}
	clock := usecase.RealClock{}

	//Usecase生成
	ledger := usecase.NewInventoryLedger(inventoryRepo, log, cfg.StockWorkers)
	transactionUC := usecase.NewTransactionUsecase(transactionRepo, auditRepo, txm, ledger, idem, idGen, clock, log, cfg.StrictTotals)
	reportUC := usecase.NewReportUsecase(transactionRepo, inventoryRepo, clock, cfg.StoreTimezone, log)
	productUC := usecase.NewProductUsecase(productRepo, inventoryRepo, auditRepo, idGen, clock, log)

	//Handler生成
	e := server.New(log)
	server.RegisterRoutes(e, server.Handlers{
		Health:       handler.NewHealthHandler(),
		Transactions: handler.NewTransactionHandler(transactionUC, reportUC, cfg.StoreTimezone),
		Dashboard:    handler.NewDashboardHandler(reportUC),
		Products:     handler.NewProductHandler(productUC, ledger),
	})

	//Server起動
	return server.Start(ctx, e, cfg.Addr(), log)
}
