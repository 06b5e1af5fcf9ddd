package server

import (
	"context"
	"os/signal"
	"syscall"

	domrepo "AutoTrade/internal/domain/repository"
	domsvc "AutoTrade/internal/domain/service"
	"AutoTrade/internal/handler/api"
	"AutoTrade/internal/usecase"
	"AutoTrade/pkg/config"
	xhttp "AutoTrade/pkg/http"
	pkgkafka "AutoTrade/pkg/kafka"
	applogger "AutoTrade/pkg/logger"
)

// App holds the wired engine. The CLI drives its use cases directly; Serve
// keeps the API and the command consumer up until a signal arrives.
type App struct {
	Cfg        *config.Config
	Log        *applogger.Logger
	Runner     *usecase.SessionRunner
	Reconciler *usecase.Reconciler
	Merger     *usecase.PriorityMerger
	Holidays   domsvc.HolidayResolver
	Dispatcher *usecase.Dispatcher

	ladders     domrepo.SellQueueStore
	assignments domrepo.AssignmentStore
	metrics     domrepo.Metrics
	consumer    *pkgkafka.Consumer // nil without Kafka brokers
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	runner *usecase.SessionRunner,
	reconciler *usecase.Reconciler,
	merger *usecase.PriorityMerger,
	holidays domsvc.HolidayResolver,
	dispatcher *usecase.Dispatcher,
	ladders domrepo.SellQueueStore,
	assignments domrepo.AssignmentStore,
	metrics domrepo.Metrics,
	consumer *pkgkafka.Consumer,
) *App {
	return &App{
		Cfg:         cfg,
		Log:         log,
		Runner:      runner,
		Reconciler:  reconciler,
		Merger:      merger,
		Holidays:    holidays,
		Dispatcher:  dispatcher,
		ladders:     ladders,
		assignments: assignments,
		metrics:     metrics,
		consumer:    consumer,
	}
}

// Serve starts the HTTP API and the session-command consumer and blocks
// until ctx ends or SIGINT/SIGTERM arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewEngineEchoHandler(ctx, a.Log, a.ladders, a.assignments, a.Dispatcher)
	srv := xhttp.NewServer(handler, a.Log,
		xhttp.WithHost(a.Cfg.Server.Host),
		xhttp.WithPort(a.Cfg.Server.Port),
		xhttp.WithCORS(a.Cfg.Server.CORS),
		xhttp.WithTimeouts(a.Cfg.Server.ReadTimeout, a.Cfg.Server.WriteTimeout, a.Cfg.Server.ShutdownTimeout),
	)
	if err := srv.Start(); err != nil {
		return err
	}

	if a.consumer != nil {
		a.consumer.RegisterHandler(usecase.NewSessionCommandHandler(a.Cfg.Kafka.Topics.Commands, a.Dispatcher, a.metrics))
		if err := a.consumer.Start(ctx); err != nil {
			a.Log.Error("kafka consumer start error", applogger.Error(err))
			return a.shutdown(srv)
		}
		a.Log.Info("kafka consumer started", applogger.String("topic", a.Cfg.Kafka.Topics.Commands))
	}

	<-ctx.Done()
	a.Log.Info("shutdown signal received")
	return a.shutdown(srv)
}

// shutdown stops intake first, then waits for sessions already running.
func (a *App) shutdown(srv *xhttp.Server) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(stopCtx); err != nil {
		a.Log.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.Log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.Dispatcher.Wait()
	a.Log.Info("shutdown complete")
	return nil
}
