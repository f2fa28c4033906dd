package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/logging"
)

// ErrTableFull is returned by Create when the table is at capacity and holds
// no finished session to evict.
var ErrTableFull = errors.New("session: table full")

// Defaults for Options.
const (
	DefaultTTL         = time.Hour
	DefaultMaxSessions = 10000
)

// Options configures a Table.
type Options struct {
	// TTL is how long a finished session is kept. Zero disables expiry.
	TTL time.Duration
	// MaxSessions caps the table. Zero means unbounded.
	MaxSessions int
	Now         func() time.Time
	Logger      logging.Logger
}

// Record is a session together with its execution history.
type Record struct {
	Session *core.Session
	History []core.HistoryEntry
}

func (r Record) clone() Record {
	return Record{
		Session: r.Session.Clone(),
		History: append([]core.HistoryEntry(nil), r.History...),
	}
}

// Table is a concurrency-safe, bounded session table. Returned records are
// copies; callers write back through Update.
type Table struct {
	mu      sync.Mutex
	records map[string]Record
	ttl     time.Duration
	max     int
	now     func() time.Time
	logger  logging.Logger
}

// NewTable creates an empty table.
func NewTable(optFns ...func(o *Options)) *Table {
	opts := Options{
		TTL:         DefaultTTL,
		MaxSessions: DefaultMaxSessions,
		Now:         time.Now,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Table{
		records: make(map[string]Record),
		ttl:     opts.TTL,
		max:     opts.MaxSessions,
		now:     opts.Now,
		logger:  logging.OrNoOp(opts.Logger),
	}
}

// Create stores a new Planned session. An existing finished session with the
// same id is replaced; a planned or running one is an error. Expired sessions are purged
// first, then the oldest finished sessions are evicted while the table is
// full.
func (t *Table) Create(id, graphKey string) (*core.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.records[id]; ok {
		if !old.Session.Status.Terminal() {
			return nil, fmt.Errorf("session %s is %s", id, old.Session.Status)
		}

		delete(t.records, id)
	}

	t.purgeLocked()

	if t.max > 0 && len(t.records) >= t.max {
		if !t.evictLocked(len(t.records) - t.max + 1) {
			return nil, ErrTableFull
		}
	}

	sess := core.NewSession(id, graphKey)
	sess.StartTime = t.now().UTC()
	t.records[id] = Record{Session: sess, History: []core.HistoryEntry{}}

	return sess.Clone(), nil
}

// Get returns a copy of the record of a session.
func (t *Table) Get(id string) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return Record{}, &core.NotFoundError{Kind: "session", Name: id}
	}

	return rec.clone(), nil
}

// Update replaces the stored copy of a session and its history.
func (t *Table) Update(sess *core.Session, history []core.HistoryEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[sess.ID]; !ok {
		return &core.NotFoundError{Kind: "session", Name: sess.ID}
	}

	t.records[sess.ID] = Record{Session: sess, History: history}.clone()

	return nil
}

// Purge removes finished sessions older than the TTL and returns how many
// were removed.
func (t *Table) Purge() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.purgeLocked()
}

// Len returns the number of sessions in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.records)
}

func (t *Table) purgeLocked() int {
	if t.ttl <= 0 {
		return 0
	}

	cutoff := t.now().Add(-t.ttl)
	removed := 0

	for id, rec := range t.records {
		if rec.Session.Status.Terminal() && rec.Session.EndTime.Before(cutoff) {
			delete(t.records, id)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("session.table.purged", "removed", removed)
	}

	return removed
}

// evictLocked removes n finished sessions, oldest end time first. It reports
// false when fewer than n finished sessions exist; nothing is removed then.
func (t *Table) evictLocked(n int) bool {
	finished := make([]Record, 0, len(t.records))

	for _, rec := range t.records {
		if rec.Session.Status.Terminal() {
			finished = append(finished, rec)
		}
	}

	if len(finished) < n {
		return false
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].Session.EndTime.Before(finished[j].Session.EndTime)
	})

	for _, rec := range finished[:n] {
		delete(t.records, rec.Session.ID)
	}

	t.logger.Debug("session.table.evicted", "evicted", n)

	return true
}
