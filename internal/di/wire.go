//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"AutoTrade/internal/domain/repository"
	internalrepo "AutoTrade/internal/repository"
	"AutoTrade/pkg/config"
	"AutoTrade/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideLimiter,

		// Infrastructure clients
		ProvideKISClient,
		ProvideBroker,
		ProvideSQLiteStore,
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaConsumer,

		// Repositories
		wire.Bind(new(repository.SellQueueStore), new(*internalrepo.SQLiteStore)),
		wire.Bind(new(repository.AssignmentStore), new(*internalrepo.SQLiteStore)),
		wire.Bind(new(repository.CandidateStore), new(*internalrepo.SQLiteStore)),
		ProvidePriceHistory,
		ProvideOrderJournal,
		ProvideHolidayCache,
		ProvideSessionLock,
		ProvideNotifier,
		ProvideHolidayResolver,

		// Use cases
		PolicyFromConfig,
		ProvideOrderGuard,
		ProvideExecutor,
		ProvideReconciler,
		ProvideMarketReader,
		ProvideStrategies,
		ProvideMerger,
		ProvideSessionRunner,
		ProvideDispatcher,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
