// Package registry implements the lock graph: the associative
// container of lock records keyed by the caller's opaque lock
// identity (spec.md §3/§4.4), each record's "before" adjacency set
// and holder list (§4.5), and the generation-stamped depth-first
// cycle search run on every acquisition (§4.7).
//
// It is grounded on rtcheck/lockclass.go's LockClassAnalysis (a
// classes map keyed by an opaque key, a Get/Lookup accessor shape,
// and small monotonic integer ids) and on rtcheck/order.go's
// LockOrder.FindCycles (DFS over an edge map, path/pathSet
// bookkeeping). The static analyzer recomputes and caches its whole
// cycle set once per query; this registry instead needs an
// incremental check on every PreLock, so the DFS here is driven by a
// per-record generation stamp (spec.md's "color") rather than a
// path/pathSet pair rebuilt from scratch each time.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lockvet/lockvet/backtrace"
)

// Holder is one active hold on a lock by one goroutine.
type Holder struct {
	ThreadName string
	Frames     []backtrace.Frame
}

// Record is one live lock's bookkeeping.
type Record struct {
	Token          any
	Recursive      bool
	Sleeper        bool
	NLock          uint64
	SpinWarnedOnce bool

	mu      sync.Mutex // protects before/holders/color for this record
	color   uint64
	before  map[*Record]struct{}
	holders []Holder // most-recent at index 0
}

func newRecord(token any, recursive, sleeper bool) *Record {
	return &Record{
		Token:     token,
		Recursive: recursive,
		Sleeper:   sleeper,
		before:    make(map[*Record]struct{}),
	}
}

// BeforeSet returns a stable, sorted-by-token-string snapshot of the
// records this record has been observed acquired after.
func (r *Record) BeforeSet() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, 0, len(r.before))
	for b := range r.before {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i].Token) < fmt.Sprint(out[j].Token)
	})
	return out
}

// Holders returns a snapshot of the active holder list, most-recent
// first.
func (r *Record) Holders() []Holder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Holder(nil), r.holders...)
}

func (r *Record) addBefore(other *Record) (added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if other == r {
		return false
	}
	if _, ok := r.before[other]; ok {
		return false
	}
	r.before[other] = struct{}{}
	return true
}

func (r *Record) addHolder(h Holder) {
	r.mu.Lock()
	r.holders = append([]Holder{h}, r.holders...)
	r.mu.Unlock()
}

// removeHolderForThread removes the first (most recent) holder entry
// whose name matches threadName, mirroring LIFO release of recursive
// acquisitions. Reports whether an entry was removed.
func (r *Record) removeHolderForThread(threadName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.holders {
		if h.ThreadName == threadName {
			r.holders = append(r.holders[:i], r.holders[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Record) isEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders) == 0
}

func (r *Record) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("lock{%v recursive=%v sleeper=%v nlock=%d holders=%d}",
		r.Token, r.Recursive, r.Sleeper, r.NLock, len(r.holders))
}

// Registry is the associative container of live lock records, guarded
// by a single internal mutex as spec.md §4.4 requires.
type Registry struct {
	mu      sync.Mutex
	records map[any]*Record
	gen     atomic.Uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{records: make(map[any]*Record)}
}

// ErrAlreadyExists is returned by Insert when token already has a
// record.
var ErrAlreadyExists = fmt.Errorf("registry: lock already initialized")

// FindOrCreate returns the unique record for token, creating it with
// the given properties if this is the first time token has been seen.
// If a record already exists, its properties are left unchanged.
func (g *Registry) FindOrCreate(token any, recursive, sleeper bool) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.FindOrCreateLocked(token, recursive, sleeper)
}

// FindOrCreateLocked is FindOrCreate's unlocked counterpart, for
// callers that already hold g's lock (e.g. PreLock, which must run
// FindOrCreate and dependency processing as one atomic step).
func (g *Registry) FindOrCreateLocked(token any, recursive, sleeper bool) *Record {
	if r, ok := g.records[token]; ok {
		return r
	}
	r := newRecord(token, recursive, sleeper)
	g.records[token] = r
	return r
}

// Insert creates a record for token, failing if one already exists.
func (g *Registry) Insert(token any, recursive, sleeper bool) (*Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.InsertLocked(token, recursive, sleeper)
}

// InsertLocked is Insert's unlocked counterpart, for callers that
// already hold g's lock.
func (g *Registry) InsertLocked(token any, recursive, sleeper bool) (*Record, error) {
	if _, ok := g.records[token]; ok {
		return nil, ErrAlreadyExists
	}
	r := newRecord(token, recursive, sleeper)
	g.records[token] = r
	return r, nil
}

// Find returns the record for token, or nil if none exists.
func (g *Registry) Find(token any) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.FindLocked(token)
}

// FindLocked is Find's unlocked counterpart, for callers that already
// hold g's lock.
func (g *Registry) FindLocked(token any) *Record {
	return g.records[token]
}

// Remove deletes r from the registry and erases it from every other
// record's before-set, the eager sweep-on-destroy design from spec.md
// §9 ("Graph ownership with removal").
func (g *Registry) Remove(r *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RemoveLocked(r)
}

// RemoveLocked is Remove's unlocked counterpart, for callers that
// already hold g's lock.
func (g *Registry) RemoveLocked(r *Record) {
	delete(g.records, r.Token)
	for _, other := range g.records {
		other.mu.Lock()
		delete(other.before, r)
		other.mu.Unlock()
	}
}

// ForEach invokes fn on every live record, under the registry lock.
func (g *Registry) ForEach(fn func(*Record)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.records {
		fn(r)
	}
}

// Lock acquires the registry's internal mutex. Exposed so the
// validator protocol can perform dependency processing (which spans
// multiple records) atomically with record lookup/creation, matching
// spec.md §4.6's "acquire the registry lock ... release the registry
// lock" framing for prelock.
func (g *Registry) Lock()   { g.mu.Lock() }
func (g *Registry) Unlock() { g.mu.Unlock() }

// AddBefore records that `other` was held while acquiring `record`,
// i.e. adds the edge other -> record. It must be called with the
// registry lock held.
func (g *Registry) AddBefore(record, other *Record) {
	record.addBefore(other)
}

// AddHolder prepends h to record's holder list. Must be called with
// the registry lock held.
func (g *Registry) AddHolder(record *Record, h Holder) {
	record.addHolder(h)
}

// RemoveHolderForThread removes record's most recent holder entry
// owned by threadName. Must be called with the registry lock held.
func (g *Registry) RemoveHolderForThread(record *Record, threadName string) bool {
	return record.removeHolderForThread(threadName)
}

// IsEmpty reports whether record currently has no active holders.
// Must be called with the registry lock held.
func (g *Registry) IsEmpty(record *Record) bool {
	return record.isEmpty()
}

// FindCycle searches start's before-edges for a path back to target,
// using a generation stamp to mark nodes visited by this search
// (spec.md §4.7's "color"). It returns the path from start to target
// (inclusive) if found, or nil. Must be called with the registry lock
// held: callers hold the registry lock for the whole dependency-
// processing step, so no other goroutine can observe or mutate
// before-sets mid-search.
func (g *Registry) FindCycle(start, target *Record) []*Record {
	gen := g.gen.Add(1)
	var path []*Record
	var dfs func(n *Record) bool
	dfs = func(n *Record) bool {
		n.mu.Lock()
		if n.color == gen {
			n.mu.Unlock()
			return false
		}
		n.color = gen
		before := make([]*Record, 0, len(n.before))
		for b := range n.before {
			before = append(before, b)
		}
		n.mu.Unlock()

		path = append(path, n)
		if n == target {
			return true
		}
		for _, b := range before {
			if dfs(b) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if dfs(start) {
		return append([]*Record(nil), path...)
	}
	return nil
}
