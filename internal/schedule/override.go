package schedule

import (
	"context"
	"log/slog"
	"time"
)

// MaxQuickOverride is the longest duration a single quick toggle can cover.
const MaxQuickOverride = 24 * time.Hour

// QuickToggle marks the agent available (or blocked) from now for d. Each
// override lives on the date it covers and stops applying once its span has
// passed; no timer or cleanup is involved.
//
// An override running past midnight is stored as two rows, the remainder of
// today and the start of tomorrow, written in one transaction. The rows are
// returned in chronological order.
func (s *Service) QuickToggle(ctx context.Context, agentID int64, available bool, d time.Duration) ([]Rule, error) {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, invalidf(ErrValidation, "duration must be positive")
	}
	if d > MaxQuickOverride {
		return nil, invalidf(ErrValidation, "duration must not exceed %s", MaxQuickOverride)
	}

	now := s.Now()
	today := DateOf(now)
	start := TimeOfDayOf(now)
	end := start.Add(d)

	spans := []Span{{Start: start, End: end}}
	if end > EndOfDay {
		spans = []Span{{Start: start, End: EndOfDay}, {Start: Midnight, End: end - EndOfDay}}
	}

	rules := make([]Rule, 0, len(spans))
	for i, sp := range spans {
		rule := NewQuickOverride(agentID, today.AddDays(i), available, sp)
		rule.CreatedAt = now
		if err := rule.Check(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	err := s.update(ctx, "quick toggle", agentID, func(tx Tx) error {
		for i := range rules {
			if err := tx.InsertRule(ctx, &rules[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range rules {
		slog.Info("Quick override set", "agent_id", agentID, "kind", string(r.Kind), "date", r.Date.String(), "span", r.Span.String())
	}
	return rules, nil
}
