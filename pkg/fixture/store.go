package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// document is the on-disk shape of the rule store.
type document struct {
	Rules []*Rule `json:"rules"`
}

// Store holds the active rule set and persists it as a single JSON document.
// Every mutation re-sorts the set and rewrites the whole file atomically, so
// readers on disk never observe a partially written rule list.
type Store struct {
	logger *slog.Logger
	path   string

	mu    sync.RWMutex
	rules []*Rule
}

// NewStore loads the rule document at path, creating an empty one when the
// file does not exist yet.
func NewStore(logger *slog.Logger, path string) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{logger: logger, path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		// First run: write the empty document so operators have a file to
		// edit, but keep going with an in-memory set if the write fails.
		if perr := s.persistLocked(); perr != nil {
			logger.Warn("Failed to write initial rules file", "path", path, "error", perr)
		}
		return s, nil
	}

	var doc document
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	for _, rule := range doc.Rules {
		rule.applyDefaults()
	}
	s.rules = doc.Rules
	s.sortLocked()

	logger.Info("Rule store loaded", "path", path, "rules", len(s.rules))
	return s, nil
}

// Path returns the location of the backing document.
func (s *Store) Path() string {
	return s.path
}

// List returns the active rule set in match order. The returned rules are
// copies and may be mutated freely.
func (s *Store) List() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, len(s.rules))
	for i, rule := range s.rules {
		out[i] = rule.clone()
	}
	return out
}

// Len reports the number of stored rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Get returns a copy of the rule with the given id.
func (s *Store) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrRuleNotFound
	}
	return s.rules[i].clone(), nil
}

// Add validates the rule, fills identity fields in place and persists the
// new set. Hit statistics always start at zero.
func (s *Store) Add(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.applyDefaults()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.HitCount = 0
	rule.LastUsedAt = time.Time{}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(rule.ID) >= 0 {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	s.rules = append(s.rules, rule.clone())
	s.sortLocked()
	return s.persistLocked()
}

// Update replaces the stored rule with the same id. Creation time and hit
// statistics survive edits; the incoming values for them are ignored.
func (s *Store) Update(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(rule.ID)
	if i < 0 {
		return ErrRuleNotFound
	}
	rule.CreatedAt = s.rules[i].CreatedAt
	rule.HitCount = s.rules[i].HitCount
	rule.LastUsedAt = s.rules[i].LastUsedAt
	rule.applyDefaults()

	s.rules[i] = rule.clone()
	s.sortLocked()
	return s.persistLocked()
}

// Delete removes the rule with the given id and persists the new set.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrRuleNotFound
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	return s.persistLocked()
}

// SetEnabled flips a rule on or off and returns a copy of the result.
func (s *Store) SetEnabled(id string, enabled bool) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrRuleNotFound
	}
	s.rules[i].Enabled = enabled
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s.rules[i].clone(), nil
}

// RecordHit bumps a rule's hit statistics. Persistence is best-effort: a
// write failure is logged and never surfaces to the caller, because the
// counters are informational and must not fail the response that matched.
func (s *Store) RecordHit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return
	}
	s.rules[i].HitCount++
	s.rules[i].LastUsedAt = time.Now().UTC()
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("Failed to persist rule hit statistics", "rule_id", id, "error", err)
	}
}

// first returns a copy of the first rule in match order accepted by the
// callback, or nil.
func (s *Store) first(accept func(*Rule) bool) *Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		if accept(rule) {
			return rule.clone()
		}
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, rule := range s.rules {
		if rule.ID == id {
			return i
		}
	}
	return -1
}

// sortLocked restores the match-order invariant: priority descending, newer
// rules first among equals.
func (s *Store) sortLocked() {
	sort.SliceStable(s.rules, func(i, j int) bool {
		if s.rules[i].Priority != s.rules[j].Priority {
			return s.rules[i].Priority > s.rules[j].Priority
		}
		return s.rules[i].CreatedAt.After(s.rules[j].CreatedAt)
	})
}

func (s *Store) persistLocked() error {
	rules := s.rules
	if rules == nil {
		rules = []*Rule{}
	}
	data, err := json.MarshalIndent(document{Rules: rules}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if err = atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}
