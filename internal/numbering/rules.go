package numbering

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"outboxapi/internal/model"
)

// DefaultKey is the rule table key used when an executor has no own rule.
const DefaultKey = "default"

// BuiltinDefault applies when the rules file is missing or has no default entry.
var BuiltinDefault = model.NumberingRule{
	ExecutorCode:   "00",
	FormatTemplate: "{number}-{executor_code}",
	StartNumber:    1,
	ResetYearly:    false,
}

type rulesFile struct {
	Rules map[string]model.NumberingRule `json:"rules"`
}

// Resolver maps executor identities to numbering rules.
// The table is replaced as a whole on Reload; readers always get a consistent copy.
type Resolver struct {
	path string
	log  zerolog.Logger

	mu    sync.RWMutex
	rules map[string]model.NumberingRule
}

// NewResolver loads the rules file at path. A missing file is not an error,
// an unreadable or invalid one is.
func NewResolver(path string, log zerolog.Logger) (*Resolver, error) {
	r := &Resolver{path: path, log: log.With().Str("component", "numbering").Logger()}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the rule for executorID, falling back to the default rule.
func (r *Resolver) Resolve(executorID string) model.NumberingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rule, ok := r.rules[strings.TrimSpace(executorID)]; ok && executorID != "" {
		return rule
	}
	if rule, ok := r.rules[DefaultKey]; ok {
		return rule
	}
	return BuiltinDefault
}

// Rules returns a snapshot of the loaded table.
func (r *Resolver) Rules() map[string]model.NumberingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.NumberingRule, len(r.rules))
	for k, v := range r.rules {
		out[k] = v
	}
	return out
}

// Reload re-reads the rules file and swaps the table. On error the previous table stays active.
func (r *Resolver) Reload() error {
	table, err := load(r.path)
	if err != nil {
		r.log.Error().Err(err).Str("path", r.path).Msg("numbering rules reload failed, keeping previous table")
		return err
	}

	r.mu.Lock()
	r.rules = table
	r.mu.Unlock()

	r.log.Info().Str("path", r.path).Int("rules", len(table)).Msg("numbering rules loaded")
	return nil
}

func load(path string) (map[string]model.NumberingRule, error) {
	table := map[string]model.NumberingRule{DefaultKey: BuiltinDefault}
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read numbering rules %s: %w", path, err)
	}

	var f rulesFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse numbering rules %s: %w", path, err)
	}
	for key, rule := range f.Rules {
		rule, err := normalize(rule)
		if err != nil {
			return nil, fmt.Errorf("numbering rule %q: %w", key, err)
		}
		table[strings.TrimSpace(key)] = rule
	}
	return table, nil
}

func normalize(rule model.NumberingRule) (model.NumberingRule, error) {
	if rule.FormatTemplate == "" {
		rule.FormatTemplate = BuiltinDefault.FormatTemplate
	}
	if !strings.Contains(rule.FormatTemplate, "{number}") {
		return rule, fmt.Errorf("format %q has no {number} placeholder", rule.FormatTemplate)
	}
	if rule.StartNumber == 0 {
		rule.StartNumber = 1
	}
	if rule.StartNumber < 1 {
		return rule, fmt.Errorf("start_number must be >= 1, got %d", rule.StartNumber)
	}
	return rule, nil
}
