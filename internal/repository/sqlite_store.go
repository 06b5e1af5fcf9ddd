package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	applogger "AutoTrade/pkg/logger"
	pkgsqlite "AutoTrade/pkg/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sell_queue (
    country TEXT NOT NULL,
    symbol TEXT NOT NULL,
    price TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (country, symbol, price)
)`,
	`CREATE INDEX IF NOT EXISTS idx_sell_queue_symbol ON sell_queue(symbol)`,
	`CREATE TABLE IF NOT EXISTS processed_fills (
    fill_date TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    price TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    order_no TEXT NOT NULL,
    processed_at DATETIME NOT NULL,
    PRIMARY KEY (fill_date, symbol, side, price, quantity, order_no)
)`,
	`CREATE TABLE IF NOT EXISTS assignments (
    symbol TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    updated_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS candidates (
    country TEXT NOT NULL,
    category TEXT NOT NULL,
    symbol TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (country, category, symbol)
)`,
}

// SQLiteStore keeps the engine's durable state: sell ladders, the fills
// already folded into them, category assignments and screener candidates.
type SQLiteStore struct {
	db  *sql.DB
	l   *applogger.Logger
	now func() time.Time
}

var (
	_ domrepo.SellQueueStore  = (*SQLiteStore)(nil)
	_ domrepo.AssignmentStore = (*SQLiteStore)(nil)
	_ domrepo.CandidateStore  = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates the schema on db if missing.
func NewSQLiteStore(ctx context.Context, db *sql.DB, l *applogger.Logger) (*SQLiteStore, error) {
	if err := pkgsqlite.InitSchema(ctx, db, sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, l: l, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) LoadBook(ctx context.Context, country models.Country) (models.LadderBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, price, quantity FROM sell_queue WHERE country = ?`, string(country))
	if err != nil {
		return nil, fmt.Errorf("load sell queue: %w", err)
	}
	defer rows.Close()

	book := models.LadderBook{}
	for rows.Next() {
		var (
			sym   string
			price decimal.Decimal
			qty   int64
		)
		if err := rows.Scan(&sym, &price, &qty); err != nil {
			return nil, fmt.Errorf("scan sell queue: %w", err)
		}
		book.Ladder(sym, country).Add(price, qty)
	}
	return book, rows.Err()
}

// Ladder returns nil when symbol has no queued sells.
func (s *SQLiteStore) Ladder(ctx context.Context, symbol string) (*models.Ladder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT country, price, quantity FROM sell_queue WHERE symbol = ?`, symbol)
	if err != nil {
		return nil, fmt.Errorf("load ladder %s: %w", symbol, err)
	}
	defer rows.Close()

	var l *models.Ladder
	for rows.Next() {
		var (
			country string
			price   decimal.Decimal
			qty     int64
		)
		if err := rows.Scan(&country, &price, &qty); err != nil {
			return nil, fmt.Errorf("scan ladder %s: %w", symbol, err)
		}
		if l == nil {
			l = models.NewLadder(symbol, models.Country(country))
		}
		l.Add(price, qty)
	}
	return l, rows.Err()
}

func fillArgs(f models.Fill) []any {
	return []any{f.Date.Format("20060102"), f.Symbol, string(f.Side), f.Price.String(), f.Quantity, f.OrderNo}
}

func (s *SQLiteStore) UnprocessedFills(ctx context.Context, fills []models.Fill) ([]models.Fill, error) {
	const q = `SELECT 1 FROM processed_fills
WHERE fill_date = ? AND symbol = ? AND side = ? AND price = ? AND quantity = ? AND order_no = ?`
	out := make([]models.Fill, 0, len(fills))
	for _, f := range fills {
		var one int
		err := s.db.QueryRowContext(ctx, q, fillArgs(f)...).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = append(out, f)
		case err != nil:
			return nil, fmt.Errorf("check processed fill %s: %w", f.OrderNo, err)
		}
	}
	return out, nil
}

// SaveBook replaces the country's queue and marks processed as applied in
// the same transaction, so a crash never applies a fill twice.
func (s *SQLiteStore) SaveBook(ctx context.Context, country models.Country, book models.LadderBook, processed []models.Fill) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save book: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC()
	if _, err = tx.ExecContext(ctx, `DELETE FROM sell_queue WHERE country = ?`, string(country)); err != nil {
		return fmt.Errorf("clear sell queue: %w", err)
	}
	ins, err := tx.PrepareContext(ctx,
		`INSERT INTO sell_queue (country, symbol, price, quantity, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sell queue insert: %w", err)
	}
	defer ins.Close()
	for _, sym := range book.Symbols() {
		for _, lv := range book[sym].Levels {
			if lv.Quantity <= 0 {
				continue
			}
			if _, err = ins.ExecContext(ctx, string(country), sym, lv.Price.String(), lv.Quantity, now); err != nil {
				return fmt.Errorf("insert sell level %s@%s: %w", sym, lv.Price, err)
			}
		}
	}

	for _, f := range processed {
		args := append(fillArgs(f), now)
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO processed_fills
(fill_date, symbol, side, price, quantity, order_no, processed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("mark fill %s: %w", f.OrderNo, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save book: %w", err)
	}
	if s.l != nil {
		s.l.Debug("sell queue saved",
			applogger.String("country", string(country)),
			applogger.Int("symbols", len(book)),
			applogger.Int("fills", len(processed)),
		)
	}
	return nil
}
