package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	pkgch "AutoTrade/pkg/clickhouse"
)

// CHOrderJournal appends order decisions to the ClickHouse orders table.
type CHOrderJournal struct {
	db    *sql.DB
	table string
}

var _ domrepo.OrderJournal = (*CHOrderJournal)(nil)

func NewCHOrderJournal(ch *pkgch.Client) *CHOrderJournal {
	return &CHOrderJournal{db: ch.DB(), table: "orders"}
}

func (j *CHOrderJournal) Record(ctx context.Context, recs []models.OrderRecord) error {
	if len(recs) == 0 {
		return nil
	}
	// multi-row VALUES in chunks to keep round trips down
	const chunkSize = 2000
	for start := 0; start < len(recs); start += chunkSize {
		end := min(start+chunkSize, len(recs))

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*12)
		for _, r := range recs[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.ID,
				r.RunID,
				r.CreatedAt,
				r.Request.Symbol,
				string(r.Request.Country),
				string(r.Request.Side),
				r.Request.Price,
				r.Request.Quantity,
				r.Request.Expiry,
				string(r.Outcome),
				r.Reason,
				r.OrderNo,
			)
		}
		q := fmt.Sprintf(`INSERT INTO %s (id, run_id, created_at, symbol, country, side, price, quantity, expiry, outcome, reason, order_no) VALUES %s`,
			j.table, strings.Join(values, ","))
		if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("journal orders: %w", err)
		}
	}
	return nil
}
