package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketpay/internal/config"
	"marketpay/internal/handler"
	"marketpay/internal/infrastructure/cache"
	"marketpay/internal/infrastructure/database"
	"marketpay/internal/infrastructure/mq"
	"marketpay/internal/infrastructure/processor"
	"marketpay/internal/infrastructure/telemetry"
	"marketpay/internal/job"
	"marketpay/internal/logger"
	"marketpay/internal/service"
	"marketpay/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}

	log := logger.New(os.Stdout, cfg.Server.Mode)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("服务异常退出")
	}
	log.Info("服务已关闭")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.WithError(err).Warn("关闭 telemetry 失败")
		}
	}()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	producer, err := mq.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	// 组装服务
	stripe := processor.NewStripeClient(cfg.Processor, log)
	ledger := service.NewBalanceLedger(db)
	notifier := service.NewOutboxNotifier(db, cfg)

	accountService := service.NewAccountService(db, ledger, stripe, log)
	orderService := service.NewOrderService(db, cfg)
	payoutService := service.NewPayoutService(db, redisClient, cfg, ledger, stripe, notifier, log)

	h := handler.NewHandler(handler.Services{
		Settlement: service.NewSettlementService(db, cfg, ledger, notifier, log),
		Payout:     payoutService,
		Account:    accountService,
		Order:      orderService,
		Checkout:   service.NewCheckoutService(accountService, orderService, stripe, cfg.Processor.PublishableKey, log),
	}, log)

	router := handler.SetupRouter(h, accountService, cfg, log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	outboxSender := job.NewOutboxSender(db, producer, cfg, log)
	reconcileJob := job.NewPayoutReconcileJob(db, payoutService, cfg, log)

	g, gCtx := errgroup.WithContext(ctx)

	// 后台任务
	g.Go(func() error {
		outboxSender.Start(gCtx)
		return nil
	})
	g.Go(func() error {
		reconcileJob.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		log.WithField("port", cfg.Server.Port).Info("服务启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "服务启动失败")
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("正在关闭服务...")

		// 关闭 HTTP 服务（等待最多5秒）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
