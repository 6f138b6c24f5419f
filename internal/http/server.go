package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smskit/sim-gateway/internal/broker"
	"github.com/smskit/sim-gateway/internal/config"
	"github.com/smskit/sim-gateway/internal/http/middleware"
	"github.com/smskit/sim-gateway/internal/logger"
	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/notify"
	"github.com/smskit/sim-gateway/internal/repository"
	"github.com/smskit/sim-gateway/internal/service/dispatch"
	"github.com/smskit/sim-gateway/internal/service/registry"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, pub broker.Publisher) *Server {
	// repos (MySQL)
	clientsRepo := repository.NewClientsRepository(mysqlDB)
	simsRepo := repository.NewSimsRepository(mysqlDB)
	messagesRepo := repository.NewMessagesRepository(mysqlDB)
	logsRepo := repository.NewLogsRepository(mysqlDB)

	// repos (ClickHouse)
	historyRepo := repository.NewStatusHistoryRepository(clickhouseDB)

	// services
	notifier := notify.NewRedisNotifier(rds)
	dispatchSvc := dispatch.New(simsRepo, messagesRepo, logsRepo, pub, notifier)
	registrySvc := registry.New(simsRepo, logsRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.WARN)
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(clientsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/sms", sendSMSHandler(dispatchSvc))
	v1.GET("/sms/inbox", listMessagesHandler(messagesRepo, model.DirectionIncoming))
	v1.GET("/sms/outbox", listMessagesHandler(messagesRepo, model.DirectionOutgoing))
	v1.GET("/sms/:id", getMessageHandler(messagesRepo))
	v1.GET("/sms-status", listStatusHistoryHandler(historyRepo))
	v1.GET("/logs", listLogsHandler(logsRepo))

	v1.GET("/sim-cards", listSimsHandler(registrySvc))
	v1.POST("/sim-cards", addSimHandler(registrySvc))
	v1.PUT("/sim-cards/:id", updateSimHandler(registrySvc))
	v1.DELETE("/sim-cards/:id", removeSimHandler(registrySvc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
