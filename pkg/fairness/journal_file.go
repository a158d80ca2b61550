package fairness

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileJournal wraps an in-memory journal with synchronous persistence to
// two files under dataDir: rng_commits.json (a JSON array snapshot,
// rewritten atomically on every commit change) and rng_draws.ndjson
// (append-only, one JSON record per accepted draw).
type FileJournal struct {
	mem *MemoryJournal

	mu        sync.Mutex
	dataDir   string
	commitsFp string
	drawsFp   string
}

type fileCommit struct {
	DayUTC         string     `json:"dayUtc"`
	ServerSeedHash string     `json:"serverSeedHash"`
	CommittedAt    time.Time  `json:"committedAt"`
	Revealed       bool       `json:"revealed"`
	ServerSeed     []byte     `json:"serverSeed,omitempty"`
	RevealedAt     *time.Time `json:"revealedAt,omitempty"`
}

type fileDraw struct {
	CaseID         string    `json:"caseId"`
	UserID         int64     `json:"userId"`
	Nonce          string    `json:"nonce"`
	ServerSeedHash string    `json:"serverSeedHash"`
	RollHex        string    `json:"rollHex"`
	Ppm            int64     `json:"ppm"`
	ResultItemID   *string   `json:"resultItemId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewFileJournal creates a FileJournal rooted at dataDir, loading any
// existing commits snapshot and draw log.
func NewFileJournal(dataDir string) (*FileJournal, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("fairness: creating data dir: %w", err)
	}
	j := &FileJournal{
		mem:       NewMemoryJournal(),
		dataDir:   dataDir,
		commitsFp: filepath.Join(dataDir, "rng_commits.json"),
		drawsFp:   filepath.Join(dataDir, "rng_draws.ndjson"),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) load() error {
	if data, err := os.ReadFile(j.commitsFp); err == nil {
		var commits []fileCommit
		if err := json.Unmarshal(data, &commits); err != nil {
			return fmt.Errorf("fairness: parsing commits snapshot: %w", err)
		}
		for _, c := range commits {
			j.mem.commits[c.DayUTC] = CommitState{
				DayUTC:         c.DayUTC,
				ServerSeedHash: c.ServerSeedHash,
				CommittedAt:    c.CommittedAt,
				Revealed:       c.Revealed,
				ServerSeed:     c.ServerSeed,
				RevealedAt:     derefTime(c.RevealedAt),
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("fairness: reading commits snapshot: %w", err)
	}

	if f, err := os.Open(j.drawsFp); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var d fileDraw
			if err := json.Unmarshal(line, &d); err != nil {
				continue // tolerate a truncated trailing line from a crash
			}
			key := DrawKey{CaseID: d.CaseID, UserID: d.UserID, Nonce: d.Nonce}
			j.mem.draws[key] = DrawRecord{
				CaseID: d.CaseID, UserID: d.UserID, Nonce: d.Nonce,
				ServerSeedHash: d.ServerSeedHash, RollHex: d.RollHex, Ppm: d.Ppm,
				ResultItemID: d.ResultItemID, CreatedAt: d.CreatedAt,
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("fairness: reading draws log: %w", err)
	}

	j.mem.pruneLocked()
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// writeSnapshotLocked atomically rewrites the commits snapshot: write to a
// temp file in the same directory, then rename over the target.
func (j *FileJournal) writeSnapshotLocked() error {
	j.mem.mu.Lock()
	commits := make([]fileCommit, 0, len(j.mem.commits))
	for _, c := range j.mem.commits {
		fc := fileCommit{
			DayUTC: c.DayUTC, ServerSeedHash: c.ServerSeedHash,
			CommittedAt: c.CommittedAt, Revealed: c.Revealed, ServerSeed: c.ServerSeed,
		}
		if !c.RevealedAt.IsZero() {
			ra := c.RevealedAt
			fc.RevealedAt = &ra
		}
		commits = append(commits, fc)
	}
	j.mem.mu.Unlock()

	data, err := json.Marshal(commits)
	if err != nil {
		return fmt.Errorf("fairness: marshaling commits snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(j.dataDir, "rng_commits-*.tmp")
	if err != nil {
		return fmt.Errorf("fairness: creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fairness: writing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fairness: closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, j.commitsFp); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fairness: renaming snapshot into place: %w", err)
	}
	return nil
}

func (j *FileJournal) appendDrawLocked(record DrawRecord) error {
	d := fileDraw{
		CaseID: record.CaseID, UserID: record.UserID, Nonce: record.Nonce,
		ServerSeedHash: record.ServerSeedHash, RollHex: record.RollHex, Ppm: record.Ppm,
		ResultItemID: record.ResultItemID, CreatedAt: record.CreatedAt,
	}
	line, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("fairness: marshaling draw record: %w", err)
	}

	f, err := os.OpenFile(j.drawsFp, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fairness: opening draws log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("fairness: appending draw record: %w", err)
	}
	return f.Sync()
}

func (j *FileJournal) GetCommit(day string) (CommitState, bool, error) {
	return j.mem.GetCommit(day)
}

func (j *FileJournal) EnsureCommit(day, hash string, committedAt time.Time) (CommitState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, err := j.mem.EnsureCommit(day, hash, committedAt)
	if err != nil {
		return c, err
	}
	if err := j.writeSnapshotLocked(); err != nil {
		return c, err
	}
	return c, nil
}

func (j *FileJournal) Reveal(day string, serverSeed []byte, revealedAt time.Time) (CommitState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, err := j.mem.Reveal(day, serverSeed, revealedAt)
	if err != nil {
		return c, err
	}
	if err := j.writeSnapshotLocked(); err != nil {
		return c, err
	}
	return c, nil
}

func (j *FileJournal) GetDraw(key DrawKey) (DrawRecord, bool, error) {
	return j.mem.GetDraw(key)
}

func (j *FileJournal) InsertDrawIfAbsent(record DrawRecord) (DrawRecord, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored, created, err := j.mem.InsertDrawIfAbsent(record)
	if err != nil {
		return stored, created, err
	}
	if created {
		if err := j.appendDrawLocked(stored); err != nil {
			return stored, created, err
		}
	}
	return stored, created, nil
}
