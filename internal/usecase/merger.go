package usecase

import (
	"context"
	"fmt"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	applogger "AutoTrade/pkg/logger"
)

// Resolve keeps the highest-priority category of each symbol.
func Resolve(candidates map[string][]models.Category) map[string]models.Category {
	out := make(map[string]models.Category, len(candidates))
	for sym, cats := range candidates {
		for _, c := range cats {
			if cur, ok := out[sym]; !ok || c.Priority() < cur.Priority() {
				out[sym] = c
			}
		}
	}
	return out
}

// MergeBuys keeps, per symbol, only the ladder of the winning category.
func MergeBuys(books map[models.Category]models.LadderBook) models.LadderBook {
	seen := map[string][]models.Category{}
	for cat, book := range books {
		for sym := range book {
			seen[sym] = append(seen[sym], cat)
		}
	}
	out := models.LadderBook{}
	for sym, cat := range Resolve(seen) {
		out[sym] = books[cat][sym]
	}
	return out
}

// PriorityMerger owns the symbol to category assignment table.
type PriorityMerger struct {
	candidates  domrepo.CandidateStore
	assignments domrepo.AssignmentStore
	log         *applogger.Logger
}

func NewPriorityMerger(candidates domrepo.CandidateStore, assignments domrepo.AssignmentStore, log *applogger.Logger) *PriorityMerger {
	return &PriorityMerger{candidates: candidates, assignments: assignments, log: log}
}

// Rebuild recomputes assignments from every market's candidates and swaps
// the table in one transaction.
func (m *PriorityMerger) Rebuild(ctx context.Context) (map[string]models.Category, error) {
	cands, err := m.candidates.Candidates(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	sets := make(map[string][]models.Category, len(cands))
	for _, c := range cands {
		sets[c.Symbol] = append(sets[c.Symbol], c.Category)
	}
	assigned := Resolve(sets)
	if err := m.assignments.ReplaceAssignments(ctx, assigned); err != nil {
		return nil, fmt.Errorf("replace assignments: %w", err)
	}

	counts := map[models.Category]int{}
	for _, c := range assigned {
		counts[c]++
	}
	m.log.Info("assignments rebuilt",
		applogger.Int("symbols", len(assigned)),
		applogger.Int("dividend", counts[models.Dividend]),
		applogger.Int("growth", counts[models.Growth]),
		applogger.Int("box", counts[models.Box]),
	)
	return assigned, nil
}
