package georaster

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultMaxAbsentAttempts      = 3
	DefaultMinAbsentCheckInterval = 10 * time.Second
	DefaultMaxAbsentTiles         = 2000
)

var absentTileMarks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "georaster_absent_tile_marks_total",
	Help: "The total number of times a tile was marked absent",
})

type absentEntry struct {
	attempts    int
	lastAttempt time.Time
}

// An AbsentTileList records failed attempts to fetch tiles. A tile is absent
// once it has been marked at least maxAttempts times and the last mark is
// more recent than minCheckInterval. When the interval elapses the tile is
// eligible for another attempt, but its attempt count is kept.
//
// The list holds a bounded number of entries; the least recently used are
// forgotten first.
type AbsentTileList struct {
	mutex            sync.Mutex
	entries          *simplelru.LRU[int64, absentEntry]
	maxAttempts      int
	minCheckInterval time.Duration
	now              func() time.Time
}

// An AbsentTileListOption sets an option on an AbsentTileList.
type AbsentTileListOption func(*AbsentTileList)

// WithClock sets the clock used to timestamp marks.
func WithClock(now func() time.Time) AbsentTileListOption {
	return func(l *AbsentTileList) {
		l.now = now
	}
}

// NewAbsentTileList returns a new AbsentTileList holding at most maxEntries.
func NewAbsentTileList(maxEntries, maxAttempts int, minCheckInterval time.Duration, options ...AbsentTileListOption) (*AbsentTileList, error) {
	if maxAttempts < 1 {
		return nil, newConfigError("maxAttempts", "must be positive")
	}
	if minCheckInterval < 0 {
		return nil, newConfigError("minCheckInterval", "must not be negative")
	}
	entries, err := simplelru.NewLRU[int64, absentEntry](maxEntries, nil)
	if err != nil {
		return nil, newConfigError("maxEntries", err.Error())
	}
	l := &AbsentTileList{
		entries:          entries,
		maxAttempts:      maxAttempts,
		minCheckInterval: minCheckInterval,
		now:              time.Now,
	}
	for _, option := range options {
		option(l)
	}
	return l, nil
}

// MarkAbsent records a failed attempt to fetch the tile at index.
func (l *AbsentTileList) MarkAbsent(index int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	entry, _ := l.entries.Get(index)
	entry.attempts++
	entry.lastAttempt = l.now()
	l.entries.Add(index, entry)
	absentTileMarks.Inc()
}

// UnmarkAbsent forgets all attempts to fetch the tile at index.
func (l *AbsentTileList) UnmarkAbsent(index int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries.Remove(index)
}

// IsAbsent returns whether the tile at index should not be fetched now.
func (l *AbsentTileList) IsAbsent(index int64) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	entry, ok := l.entries.Peek(index)
	if !ok {
		return false
	}
	if l.now().Sub(entry.lastAttempt) >= l.minCheckInterval {
		return false
	}
	return entry.attempts >= l.maxAttempts
}

// Attempts returns the number of recorded attempts for the tile at index.
func (l *AbsentTileList) Attempts(index int64) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	entry, _ := l.entries.Peek(index)
	return entry.attempts
}
