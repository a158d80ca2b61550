// Package fairness implements the commit-reveal RNG fairness engine and its
// pluggable journal backends: in-memory, append-only file, and SQL.
package fairness

import (
	"errors"
	"time"
)

// ErrCommitNotFound is returned when Reveal is attempted for a day that has
// no commit yet.
var ErrCommitNotFound = errors.New("commit not found")

// ErrDayNotEnded is returned when Reveal is attempted for a day that has not
// ended yet: the day must be strictly before today.
var ErrDayNotEnded = errors.New("day has not ended yet")

// CommitState is the per-day commit record. ServerSeed and RevealedAt are
// zero until Revealed is true.
type CommitState struct {
	DayUTC         string
	ServerSeedHash string
	CommittedAt    time.Time
	Revealed       bool
	ServerSeed     []byte
	RevealedAt     time.Time
}

// DrawRecord is an immutable per-(caseId,userId,nonce) draw.
type DrawRecord struct {
	CaseID         string
	UserID         int64
	Nonce          string
	ServerSeedHash string
	RollHex        string
	Ppm            int64
	ResultItemID   *string
	CreatedAt      time.Time
}

// DrawKey identifies a draw's idempotency key.
type DrawKey struct {
	CaseID string
	UserID int64
	Nonce  string
}

// Journal is the pluggable persistence backend for commits and draws.
// Implementations must make EnsureCommit and InsertDrawIfAbsent atomic with
// respect to concurrent callers for the same key.
type Journal interface {
	// GetCommit returns the commit state for day, if any.
	GetCommit(day string) (CommitState, bool, error)

	// EnsureCommit upserts (day, hash). If a commit already exists for day,
	// it is returned unchanged; the caller is responsible for verifying the
	// hash matches.
	EnsureCommit(day, hash string, committedAt time.Time) (CommitState, error)

	// Reveal transitions day's commit from Pending to Revealed, storing
	// serverSeed. Returns an error if no commit exists for day. If day is
	// already revealed, the stored state is returned unchanged with no error
	// and serverSeed is ignored.
	Reveal(day string, serverSeed []byte, revealedAt time.Time) (CommitState, error)

	// GetDraw returns the draw record for key, if any.
	GetDraw(key DrawKey) (DrawRecord, bool, error)

	// InsertDrawIfAbsent inserts record if key is not already present,
	// returning the (possibly pre-existing) stored record and whether this
	// call created it.
	InsertDrawIfAbsent(record DrawRecord) (stored DrawRecord, created bool, err error)
}
