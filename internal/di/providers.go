package di

import (
	"context"
	"fmt"
	"time"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/domain/repository"
	domsvc "AutoTrade/internal/domain/service"
	mid "AutoTrade/internal/middleware"
	internalrepo "AutoTrade/internal/repository"
	"AutoTrade/internal/service/holiday"
	"AutoTrade/internal/service/kis"
	"AutoTrade/internal/service/ratelimit"
	"AutoTrade/internal/usecase"
	"AutoTrade/pkg/cache"
	pkgch "AutoTrade/pkg/clickhouse"
	"AutoTrade/pkg/config"
	pkgkafka "AutoTrade/pkg/kafka"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/metrics"
	"AutoTrade/pkg/server"
	pkgsqlite "AutoTrade/pkg/sqlite"
)

// ProvideLogger builds the process logger. With a Kafka producer, repeated
// errors are also aggregated onto the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        "autotrade",
			TimeInterval:   cfg.Log.FlushInterval,
			CountThreshold: cfg.Log.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideKISClient builds the brokerage client of the domestic account. It
// also serves the KRX calendar.
func ProvideKISClient(cfg *config.Config, limiter *ratelimit.Limiter, m repository.Metrics, l *applogger.Logger) *kis.Client {
	return newKISClient(cfg, cfg.Account(string(models.KOR)), limiter, m, l)
}

func newKISClient(cfg *config.Config, a config.BrokerAccount, limiter *ratelimit.Limiter, m repository.Metrics, l *applogger.Logger) *kis.Client {
	b := cfg.Broker
	return kis.NewClient(kis.Config{
		AppKey:        a.AppKey,
		AppSecret:     a.AppSecret,
		AccountNumber: a.AccountNumber,
		AccountCode:   a.AccountCode,
		Simulate:      b.Simulate,
		BaseURL:       b.BaseURL,
		Timeout:       b.Timeout,
		CallDelay:     b.CallDelay,
		MaxRetries:    b.MaxRetries,
		BackoffBase:   b.BackoffBase,
		BackoffMax:    b.BackoffMax,
		Location:      cfg.Location(),
	}, limiter, m, l)
}

// ProvideBroker gives every market with its own account a separate client.
// Markets sharing the domestic credentials reuse the domestic client.
func ProvideBroker(cfg *config.Config, domestic *kis.Client, limiter *ratelimit.Limiter, m repository.Metrics, l *applogger.Logger) domsvc.Broker {
	kor := cfg.Account(string(models.KOR))
	routes := map[models.Country]*kis.Client{}
	for market := range cfg.Broker.Accounts {
		a := cfg.Account(market)
		if a == kor {
			continue
		}
		country, err := models.ParseCountry(market)
		if err != nil {
			continue
		}
		routes[country] = newKISClient(cfg, a, limiter, m, l)
		l.Info("broker account routed", applogger.String("market", market))
	}
	return kis.NewBroker(domestic, routes)
}

// ProvideSQLiteStore opens the durable state store and creates its schema.
func ProvideSQLiteStore(cfg *config.Config, l *applogger.Logger) (*internalrepo.SQLiteStore, func(), error) {
	db, err := pkgsqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := internalrepo.NewSQLiteStore(ctx, db, l)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite store: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			l.Warn("sqlite close error", applogger.Error(err))
		}
	}, nil
}

// ProvideClickHouseClient creates a ClickHouse client and ensures its tables.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvidePriceHistory(ch *pkgch.Client, l *applogger.Logger) repository.PriceHistory {
	return internalrepo.NewCHPriceHistory(ch, l)
}

func ProvideOrderJournal(ch *pkgch.Client) repository.OrderJournal {
	return internalrepo.NewCHOrderJournal(ch)
}

// ProvideCache returns a Redis-backed layered cache when Redis is enabled and
// an in-process cache otherwise. Only the Redis variant shares the session
// lock between processes.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(10, 2, 5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemory(5000, 24*time.Hour))
	return lc, func() { _ = lc.Close() }, nil
}

func ProvideHolidayCache(c cache.Service) repository.HolidayCache {
	return internalrepo.NewCachedHolidays(c)
}

// ProvideSessionLock returns nil when locking is disabled.
func ProvideSessionLock(cfg *config.Config, c cache.Service) repository.SessionLock {
	if !cfg.Session.Lock {
		return nil
	}
	return internalrepo.NewCacheLock(c)
}

// ProvideHolidayResolver serves the KRX calendar for KOR and weekdays elsewhere.
func ProvideHolidayResolver(c *kis.Client, hc repository.HolidayCache, cfg *config.Config, l *applogger.Logger) domsvc.HolidayResolver {
	return holiday.NewMarkets(holiday.NewResolver(c, hc, cfg.Location(), l), cfg.Location())
}

// ProvideKafkaProducer returns nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideKafkaConsumer returns nil without brokers.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(2),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideNotifier publishes to Kafka when a producer exists and logs otherwise.
func ProvideNotifier(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) repository.Notifier {
	if producer == nil {
		return internalrepo.NewLogNotifier(l)
	}
	return internalrepo.NewKafkaNotifier(producer, cfg.Kafka.Topics.Summary, cfg.Kafka.Topics.Alerts)
}

// PolicyFromConfig maps the risk and strategy sections onto the engine policy.
func PolicyFromConfig(cfg *config.Config) usecase.Policy {
	p := usecase.DefaultPolicy()
	r, s := cfg.Risk, cfg.Strategy
	p.RiskPct = r.RiskPct
	p.RiskATRMult = r.RiskATRMult
	p.ADTVLimitRatio = r.ADTVLimitRatio
	p.MaxPositionWeight = r.MaxPositionWeight
	p.EquityUSD = r.EquityUSD
	p.USDKRW = r.USDKRW
	p.MinADTVUSD = r.MinADTVUSD
	p.MinADTVOther = r.MinADTVOther
	p.VIXSymbol = s.VIXSymbol
	p.VIXHalt = s.VIXHalt
	p.AntiChaseRatio = s.AntiChaseRatio
	p.BuyExpiryDays = s.BuyExpiryDays
	p.SellExpiryDays = s.SellExpiryDays
	p.Workers = s.Workers
	p.PrevCloseExtra = s.PrevCloseExtra
	p.LiquidateOrphans = s.LiquidateOrphan
	p.DryRun = cfg.Session.DryRun
	return p
}

func ProvideOrderGuard(cfg *config.Config, m repository.Metrics, limiter *ratelimit.Limiter) usecase.OrderGuard {
	return mid.NewOrderPipeline(m, limiter, mid.WithMaxPerSymbol(cfg.Session.MaxOrdersPerSymbol))
}

func ProvideExecutor(
	broker domsvc.Broker,
	holidays domsvc.HolidayResolver,
	journal repository.OrderJournal,
	m repository.Metrics,
	guard usecase.OrderGuard,
	policy usecase.Policy,
	l *applogger.Logger,
) *usecase.Executor {
	return usecase.NewExecutor(broker, holidays, journal, m, guard, policy, l)
}

func ProvideReconciler(broker domsvc.Broker, store repository.SellQueueStore, cfg *config.Config, l *applogger.Logger) *usecase.Reconciler {
	return usecase.NewReconciler(broker, store, cfg.Location(), l)
}

func ProvideMarketReader(prices repository.PriceHistory, policy usecase.Policy, l *applogger.Logger) *usecase.MarketReader {
	return usecase.NewMarketReader(prices, policy.VIXSymbol, l)
}

// ProvideStrategies builds the three category strategies in priority order.
func ProvideStrategies(
	prices repository.PriceHistory,
	candidates repository.CandidateStore,
	assignments repository.AssignmentStore,
	market *usecase.MarketReader,
	policy usecase.Policy,
	cfg *config.Config,
	l *applogger.Logger,
) []usecase.Strategy {
	d := usecase.StrategyDeps{
		Prices:      prices,
		Candidates:  candidates,
		Assignments: assignments,
		Market:      market,
		Policy:      policy,
		Location:    cfg.Location(),
		Log:         l,
	}
	return []usecase.Strategy{
		usecase.NewDividendStrategy(d),
		usecase.NewGrowthStrategy(d),
		usecase.NewRangeBoundStrategy(d),
	}
}

func ProvideMerger(candidates repository.CandidateStore, assignments repository.AssignmentStore, l *applogger.Logger) *usecase.PriorityMerger {
	return usecase.NewPriorityMerger(candidates, assignments, l)
}

func ProvideSessionRunner(
	cfg *config.Config,
	broker domsvc.Broker,
	holidays domsvc.HolidayResolver,
	reconciler *usecase.Reconciler,
	executor *usecase.Executor,
	strategies []usecase.Strategy,
	prices repository.PriceHistory,
	assignments repository.AssignmentStore,
	lock repository.SessionLock,
	notifier repository.Notifier,
	m repository.Metrics,
	policy usecase.Policy,
	l *applogger.Logger,
) *usecase.SessionRunner {
	return usecase.NewSessionRunner(usecase.SessionDeps{
		Broker:      broker,
		Holidays:    holidays,
		Reconciler:  reconciler,
		Executor:    executor,
		Strategies:  strategies,
		Prices:      prices,
		Assignments: assignments,
		Lock:        lock,
		LockTTL:     cfg.Session.LockTTL,
		Notifier:    notifier,
		Metrics:     m,
		Policy:      policy,
		Location:    cfg.Location(),
		Log:         l,
	})
}

func ProvideDispatcher(runner *usecase.SessionRunner, reconciler *usecase.Reconciler, merger *usecase.PriorityMerger, l *applogger.Logger) *usecase.Dispatcher {
	return usecase.NewDispatcher(runner, reconciler, merger, l)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.SessionRunner,
	reconciler *usecase.Reconciler,
	merger *usecase.PriorityMerger,
	holidays domsvc.HolidayResolver,
	dispatcher *usecase.Dispatcher,
	store *internalrepo.SQLiteStore,
	m repository.Metrics,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, l, runner, reconciler, merger, holidays, dispatcher, store, store, m, consumer)
}
