// Package sqlmission runs learner SQL against a small in-memory dataset and
// grades it against an expected query.
package sqlmission

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/feedback"
	"github.com/tuannm99/sqlmission/internal/metrics"
	"github.com/tuannm99/sqlmission/internal/sql/executor"
	"github.com/tuannm99/sqlmission/internal/sql/parser"
)

type (
	Result = executor.Result
	Report = feedback.Report
)

var (
	ErrTableNotFound        = executor.ErrTableNotFound
	ErrSyntax               = executor.ErrSyntax
	ErrUnsupportedStatement = executor.ErrUnsupportedStatement
	ErrUnsupportedCondition = executor.ErrUnsupportedCondition
	ErrUnknownColumn        = executor.ErrUnknownColumn
)

// Session owns a pristine seed and the working copy statements run against.
// All methods are safe for concurrent use; statements are applied one at a time.
type Session struct {
	mu       sync.Mutex
	id       string
	pristine *catalog.TableSet
	working  *catalog.TableSet

	exec     *executor.Executor
	execOpts executor.Options
	diffOpts feedback.Options
	log      *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Session)

// WithStrictWhere rejects WHERE/HAVING shapes the engine cannot evaluate
// instead of leaving rows unfiltered.
func WithStrictWhere(strict bool) Option {
	return func(s *Session) { s.execOpts.StrictWhere = strict }
}

// WithCompareJoin makes Diff grade the JOIN clause too.
func WithCompareJoin(compare bool) Option {
	return func(s *Session) { s.diffOpts.CompareJoin = compare }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession copies seed (catalog.Seed() when nil) and returns a session
// whose working tables start out equal to it.
func NewSession(seed *catalog.TableSet, opts ...Option) *Session {
	if seed == nil {
		seed = catalog.Seed()
	}
	s := &Session{
		id:       uuid.NewString(),
		pristine: seed.Clone(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.id)
	s.execOpts.Logger = s.log
	s.exec = executor.NewExecutor(s.execOpts)
	s.working = s.pristine.Clone()
	return s
}

func (s *Session) ID() string { return s.id }

// Execute runs one statement against the working tables.
// A failed statement leaves the tables unchanged.
func (s *Session) Execute(query string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := s.exec.Execute(query, s.working)
	s.metrics.ObserveStatement(parser.Classify(query).String(), time.Since(start), err)
	if err != nil {
		s.log.Debug("session: statement rejected", "err", err)
		return nil, err
	}
	if res.IsMutation {
		s.log.Info("session: tables changed", "table", res.Table, "rows", len(res.Rows))
	}
	return res, nil
}

// Diff grades submitted against expected. It does not touch the tables.
func (s *Session) Diff(submitted, expected string) *Report {
	r := feedback.Diff(submitted, expected, s.diffOpts)
	s.metrics.ObserveDiff(r.IsCorrect)
	return r
}

// Reset replaces the working tables with a fresh copy of the seed.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = s.pristine.Clone()
	s.metrics.Reset()
	s.log.Info("session: reset")
}

// Tables returns a copy of every working table, sorted by name.
func (s *Session) Tables() []*catalog.Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.working.Names()
	out := make([]*catalog.Table, 0, len(names))
	for _, n := range names {
		t, _ := s.working.Table(n)
		out = append(out, t.Clone())
	}
	return out
}
