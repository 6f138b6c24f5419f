package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/smskit/sim-gateway/internal/broker"
	"github.com/smskit/sim-gateway/internal/config"
	"github.com/smskit/sim-gateway/internal/db"
	"github.com/smskit/sim-gateway/internal/logger"
	"github.com/smskit/sim-gateway/internal/metrics"
	"github.com/smskit/sim-gateway/internal/notify"
	"github.com/smskit/sim-gateway/internal/repository"
	"github.com/smskit/sim-gateway/internal/service/reconcile"
	"github.com/smskit/sim-gateway/internal/worker"
)

var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Consume delivery-status and incoming-message events",
	RunE:  runReconciler,
}

func runReconciler(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer mysqlDB.Close()

	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	redisClient, err := db.NewRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	pub := broker.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Broker.PublishTimeout)
	defer func() { _ = pub.Close() }()

	simsRepo := repository.NewSimsRepository(mysqlDB)
	messagesRepo := repository.NewMessagesRepository(mysqlDB)
	logsRepo := repository.NewLogsRepository(mysqlDB)
	historyRepo := repository.NewStatusHistoryRepository(chDB)
	notifier := notify.NewRedisNotifier(redisClient)

	svc := reconcile.New(simsRepo, messagesRepo, logsRepo, historyRepo, pub, notifier, cfg.Broker.StatusTopic)

	statusConsumer := broker.NewConsumer(cfg.Kafka, cfg.Broker.StatusTopic)
	defer func() { _ = statusConsumer.Close() }()
	receiveConsumer := broker.NewConsumer(cfg.Kafka, cfg.Broker.ReceiveTopic)
	defer func() { _ = receiveConsumer.Close() }()

	rec := &worker.Reconciler{
		Status:   statusConsumer,
		Receive:  receiveConsumer,
		OnStatus: svc.OnStatusEvent,
		OnRecv:   svc.OnReceiveEvent,
		Workers:  cfg.Reconciler.Workers,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger.Log.Info("reconciler started")
	return rec.Run(ctx)
}
