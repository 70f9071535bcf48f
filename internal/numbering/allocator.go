package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"outboxapi/internal/model"
)

// Scope modes. The mode is fixed per deployment.
const (
	ScopeGlobal      = "global"
	ScopePerExecutor = "per_executor"
)

// SequenceSource reports the highest committed sequence number in a scope.
type SequenceSource interface {
	MaxSequence(ctx context.Context, scope model.Scope) (int, error)
}

// Allocator proposes the next document number. It reserves nothing: two callers
// may receive the same proposal and the journal's unique constraints decide who wins.
type Allocator struct {
	src  SequenceSource
	mode string
	loc  *time.Location
	now  func() time.Time
}

func NewAllocator(src SequenceSource, mode string, loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	if mode != ScopePerExecutor {
		mode = ScopeGlobal
	}
	return &Allocator{src: src, mode: mode, loc: loc, now: time.Now}
}

// ScopeFor derives the competing scope of a rule on the given date.
func (a *Allocator) ScopeFor(rule model.NumberingRule, date model.Date) model.Scope {
	var s model.Scope
	if rule.ResetYearly {
		s.Year = date.Year()
	}
	if a.mode == ScopePerExecutor {
		s.Executor = rule.ExecutorCode
	}
	return s
}

// Next computes max(observed, start-1)+1 in the rule's scope for today.
func (a *Allocator) Next(ctx context.Context, rule model.NumberingRule) (model.Allocation, error) {
	date := model.NewDate(a.now().In(a.loc))
	scope := a.ScopeFor(rule, date)

	observed, err := a.src.MaxSequence(ctx, scope)
	if err != nil {
		return model.Allocation{}, fmt.Errorf("read max sequence: %w", err)
	}

	next := max(observed, rule.StartNumber-1) + 1
	return model.Allocation{
		SequenceNumber:  next,
		FormattedNumber: Format(rule, next),
		IssueDate:       date,
		ExecutorCode:    rule.ExecutorCode,
		Scope:           scope,
	}, nil
}

// Format renders a sequence number through the rule's format template.
func Format(rule model.NumberingRule, n int) string {
	return strings.NewReplacer(
		"{number}", strconv.Itoa(n),
		"{executor_code}", rule.ExecutorCode,
	).Replace(rule.FormatTemplate)
}
