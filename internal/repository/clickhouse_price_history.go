package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	pkgch "AutoTrade/pkg/clickhouse"
	applogger "AutoTrade/pkg/logger"
)

// ClickHouseSchema creates the analytical tables. Daily bars are loaded by
// an external collector; the engine only reads them.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_history (
        symbol LowCardinality(String),
        date Date,
        open Float64,
        high Float64,
        low Float64,
        close Float64,
        volume Float64,
        updated_at DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(updated_at)
    ORDER BY (symbol, date)`,
	`CREATE TABLE IF NOT EXISTS orders (
        id String,
        run_id String,
        created_at DateTime64(3),
        symbol LowCardinality(String),
        country LowCardinality(String),
        side LowCardinality(String),
        price Decimal(18, 4),
        quantity Int64,
        expiry Date,
        outcome LowCardinality(String),
        reason String,
        order_no String
    ) ENGINE = MergeTree
    PARTITION BY toYYYYMM(created_at)
    ORDER BY (country, created_at, symbol)`,
}

// CHPriceHistory implements PriceHistory backed by ClickHouse.
type CHPriceHistory struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.PriceHistory = (*CHPriceHistory)(nil)

func NewCHPriceHistory(ch *pkgch.Client, l *applogger.Logger) *CHPriceHistory {
	return &CHPriceHistory{db: ch.DB(), l: l}
}

// Bars returns up to n daily bars on or before until, oldest first.
func (s *CHPriceHistory) Bars(ctx context.Context, symbol string, n int, until time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	const q = `
        SELECT date, open, high, low, close, volume
        FROM price_history FINAL
        WHERE symbol = ? AND date <= ?
        ORDER BY date DESC
        LIMIT ?
    `
	day := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.QueryContext(ctx, q, symbol, day, n)
	if err != nil {
		s.l.Error("clickhouse bars query error",
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	defer rows.Close()

	tmp := make([]models.PriceBar, 0, n)
	for rows.Next() {
		b := models.PriceBar{Symbol: symbol}
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar %s: %w", symbol, err)
		}
		tmp = append(tmp, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// reverse to ascending
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

func (s *CHPriceHistory) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
