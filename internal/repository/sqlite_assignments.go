package repository

import (
	"context"
	"fmt"
	"sort"

	"AutoTrade/internal/domain/models"
)

func (s *SQLiteStore) Assignments(ctx context.Context) (map[string]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, category FROM assignments`)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Category)
	for rows.Next() {
		var sym, cat string
		if err := rows.Scan(&sym, &cat); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out[sym] = models.Category(cat)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceAssignments(ctx context.Context, a map[string]models.Category) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace assignments: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	syms := make([]string, 0, len(a))
	for sym := range a {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	now := s.now().UTC()
	for _, sym := range syms {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO assignments (symbol, category, updated_at) VALUES (?, ?, ?)`,
			sym, string(a[sym]), now); err != nil {
			return fmt.Errorf("insert assignment %s: %w", sym, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assignments: %w", err)
	}
	return nil
}

// Candidates lists screener hits; an empty country lists every market.
func (s *SQLiteStore) Candidates(ctx context.Context, country models.Country) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, country, category FROM candidates
WHERE ? = '' OR country = ?
ORDER BY country, category, symbol`, string(country), string(country))
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var sym, c, cat string
		if err := rows.Scan(&sym, &c, &cat); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, models.Candidate{Symbol: sym, Country: models.Country(c), Category: models.Category(cat)})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceCandidates(ctx context.Context, country models.Country, category models.Category, symbols []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace candidates: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM candidates WHERE country = ? AND category = ?`,
		string(country), string(category)); err != nil {
		return fmt.Errorf("clear candidates: %w", err)
	}
	now := s.now().UTC()
	for _, sym := range symbols {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO candidates (country, category, symbol, updated_at)
VALUES (?, ?, ?, ?)`, string(country), string(category), sym, now); err != nil {
			return fmt.Errorf("insert candidate %s: %w", sym, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit candidates: %w", err)
	}
	return nil
}
