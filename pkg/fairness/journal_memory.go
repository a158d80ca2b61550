package fairness

import (
	"fmt"
	"sync"
	"time"
)

// MemoryJournal is the reference in-memory Journal. Entries older than TTL
// (default 30 days) are lazily dropped on access rather than swept in the
// background.
type MemoryJournal struct {
	mu      sync.Mutex
	commits map[string]CommitState
	draws   map[DrawKey]DrawRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryJournal creates an empty in-memory journal with the default
// 30-day retention.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		commits: make(map[string]CommitState),
		draws:   make(map[DrawKey]DrawRecord),
		ttl:     30 * 24 * time.Hour,
		now:     time.Now,
	}
}

func (j *MemoryJournal) pruneLocked() {
	cutoff := j.now().Add(-j.ttl)
	for day, c := range j.commits {
		if c.CommittedAt.Before(cutoff) {
			delete(j.commits, day)
		}
	}
	for k, d := range j.draws {
		if d.CreatedAt.Before(cutoff) {
			delete(j.draws, k)
		}
	}
}

func (j *MemoryJournal) GetCommit(day string) (CommitState, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruneLocked()
	c, ok := j.commits[day]
	return c, ok, nil
}

func (j *MemoryJournal) EnsureCommit(day, hash string, committedAt time.Time) (CommitState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruneLocked()

	if existing, ok := j.commits[day]; ok {
		return existing, nil
	}
	c := CommitState{DayUTC: day, ServerSeedHash: hash, CommittedAt: committedAt}
	j.commits[day] = c
	return c, nil
}

func (j *MemoryJournal) Reveal(day string, serverSeed []byte, revealedAt time.Time) (CommitState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.commits[day]
	if !ok {
		return CommitState{}, fmt.Errorf("fairness: no commit for day %q", day)
	}
	if c.Revealed {
		return c, nil
	}
	c.Revealed = true
	c.ServerSeed = serverSeed
	c.RevealedAt = revealedAt
	j.commits[day] = c
	return c, nil
}

func (j *MemoryJournal) GetDraw(key DrawKey) (DrawRecord, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruneLocked()
	d, ok := j.draws[key]
	return d, ok, nil
}

func (j *MemoryJournal) InsertDrawIfAbsent(record DrawRecord) (DrawRecord, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := DrawKey{CaseID: record.CaseID, UserID: record.UserID, Nonce: record.Nonce}
	if existing, ok := j.draws[key]; ok {
		return existing, false, nil
	}
	j.draws[key] = record
	return record, true, nil
}
