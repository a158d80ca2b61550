package fairness

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/cryptoutil"
	"github.com/wisbric/paygate/pkg/economy"
)

const dayLayout = "2006-01-02"

// VerifyOutcome tags the result of Verify.
type VerifyOutcome string

const (
	VerifyCommitMissing     VerifyOutcome = "commit_missing"
	VerifyInvalidServerSeed VerifyOutcome = "invalid_server_seed"
	VerifyServerSeedMismatch VerifyOutcome = "server_seed_mismatch"
	VerifySuccess            VerifyOutcome = "success"
)

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Outcome        VerifyOutcome
	Ppm            int64
	RollHex        string
	ServerSeedHash string
}

// Receipt is the public, verifiable record of a single draw.
type Receipt struct {
	Date           string
	ServerSeedHash string
	ClientSeed     string
	RollHex        string
	Ppm            int64
}

// Service implements the commit-reveal RNG engine.
type Service struct {
	key     []byte
	journal Journal
	catalog economy.Catalog
	now     func() time.Time
}

// New creates a fairness Service. key is the FAIRNESS_KEY configured value,
// already decoded to raw bytes.
func New(key []byte, journal Journal, catalog economy.Catalog) *Service {
	return &Service{key: key, journal: journal, catalog: catalog, now: time.Now}
}

func (s *Service) today() string {
	return s.now().UTC().Format(dayLayout)
}

// ServerSeed computes HMAC-SHA256(key, utf8(iso(day))).
func (s *Service) ServerSeed(day string) []byte {
	return cryptoutil.HMACSHA256(s.key, []byte(day))
}

// ServerSeedHash computes toHex(SHA-256(ServerSeed(day))).
func (s *Service) ServerSeedHash(day string) string {
	return cryptoutil.SHA256Hex(s.ServerSeed(day))
}

// ClientSeed computes "<userId>|<nonce>|<caseId>|v1".
func ClientSeed(userID int64, nonce, caseID string) string {
	return fmt.Sprintf("%d|%s|%s|v1", userID, nonce, caseID)
}

// RollBytes computes HMAC-SHA256(serverSeed, utf8(clientSeed)).
func RollBytes(serverSeed []byte, userID int64, nonce, caseID string) []byte {
	return cryptoutil.HMACSHA256(serverSeed, []byte(ClientSeed(userID, nonce, caseID)))
}

// ppmFromRoll computes ppm = (bigUnsignedBE(roll[0:8]) * 1_000_000) / 2^64,
// using a widening big.Int operation so the result is never truncated to a
// signed 64-bit value.
func ppmFromRoll(roll []byte) int64 {
	top8 := binary.BigEndian.Uint64(roll[:8])
	n := new(big.Int).SetUint64(top8)
	n.Mul(n, big.NewInt(1_000_000))
	n.Rsh(n, 64) // divide by 2^64
	return n.Int64()
}

// EnsureTodayCommit upserts (today, hash) into the journal. Idempotent: a
// second call on the same day returns the existing commit.
func (s *Service) EnsureTodayCommit() (CommitState, error) {
	day := s.today()
	hash := s.ServerSeedHash(day)
	c, err := s.journal.EnsureCommit(day, hash, s.now())
	if err != nil {
		return CommitState{}, fmt.Errorf("fairness: ensuring commit: %w", err)
	}
	if c.ServerSeedHash != hash {
		return CommitState{}, fmt.Errorf("fairness: existing commit hash for %q does not match derived hash", day)
	}
	return c, nil
}

// Reveal requires day < today, recomputes the expected hash and asserts it
// matches the stored commit, then persists and returns the revealed seed.
func (s *Service) Reveal(day string) (CommitState, error) {
	if day >= s.today() {
		return CommitState{}, fmt.Errorf("fairness: day %q: %w", day, ErrDayNotEnded)
	}
	c, ok, err := s.journal.GetCommit(day)
	if err != nil {
		return CommitState{}, err
	}
	if !ok {
		return CommitState{}, fmt.Errorf("fairness: %w", ErrCommitNotFound)
	}
	if c.Revealed {
		return c, nil
	}

	expectedHash := s.ServerSeedHash(day)
	if expectedHash != c.ServerSeedHash {
		return CommitState{}, fmt.Errorf("fairness: derived hash for day %q does not match stored commit", day)
	}

	seed := s.ServerSeed(day)
	return s.journal.Reveal(day, seed, s.now())
}

// Draw performs an idempotent draw for (caseId, userId, nonce) against
// today's commit, resolving a prize by cumulative-probability walk.
// Returns the stored record (existing if this is a repeat call) and a
// public Receipt.
func (s *Service) Draw(caseID string, userID int64, nonce string) (DrawRecord, Receipt, error) {
	day := s.today()
	c, err := s.EnsureTodayCommit()
	if err != nil {
		return DrawRecord{}, Receipt{}, err
	}
	seed := s.ServerSeed(day)

	roll := RollBytes(seed, userID, nonce, caseID)
	ppm := ppmFromRoll(roll)
	rollHex := cryptoutil.ToHex(roll)

	var resultItemID *string
	if s.catalog != nil {
		if cfg, ok := s.catalog.Lookup(caseID); ok {
			resultItemID = resolvePrize(cfg, ppm)
		}
	}

	sampledBefore := s.now()
	record := DrawRecord{
		CaseID: caseID, UserID: userID, Nonce: nonce,
		ServerSeedHash: c.ServerSeedHash, RollHex: rollHex, Ppm: ppm,
		ResultItemID: resultItemID, CreatedAt: sampledBefore,
	}

	stored, created, err := s.journal.InsertDrawIfAbsent(record)
	if err != nil {
		return DrawRecord{}, Receipt{}, fmt.Errorf("fairness: inserting draw: %w", err)
	}

	telemetry.RNGDrawTotal.Inc()
	if !created {
		telemetry.RNGDrawIdempotentTotal.Inc()
	}

	receipt := Receipt{
		Date: day, ServerSeedHash: c.ServerSeedHash,
		ClientSeed: ClientSeed(userID, nonce, caseID),
		RollHex:    stored.RollHex, Ppm: stored.Ppm,
	}
	return stored, receipt, nil
}

// resolvePrize walks cfg.Items in order, accumulating ProbabilityPpm, and
// returns the ID of the first item whose cumulative total exceeds ppm. If
// the sum of all ProbabilityPpm is below 1,000,000 and ppm overflows past
// it, nil is returned: tolerated rather than treated as an error.
func resolvePrize(cfg economy.CaseConfig, ppm int64) *string {
	var cumulative int64
	for _, item := range cfg.Items {
		cumulative += item.ProbabilityPpm
		if cumulative > ppm {
			id := item.ID
			return &id
		}
	}
	return nil
}

// Verify recomputes the roll for a candidate server seed and compares it
// against the stored commit hash.
func (s *Service) Verify(day, candidateServerSeedHex string, userID int64, nonce, caseID string) (VerifyResult, error) {
	c, ok, err := s.journal.GetCommit(day)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		return VerifyResult{Outcome: VerifyCommitMissing}, nil
	}

	candidate, err := hex.DecodeString(candidateServerSeedHex)
	if err != nil {
		return VerifyResult{Outcome: VerifyInvalidServerSeed}, nil
	}

	candidateHash := cryptoutil.SHA256Hex(candidate)
	if !cryptoutil.ConstantTimeEqualHex(candidateHash, c.ServerSeedHash) {
		return VerifyResult{Outcome: VerifyServerSeedMismatch}, nil
	}

	roll := RollBytes(candidate, userID, nonce, caseID)
	ppm := ppmFromRoll(roll)
	return VerifyResult{
		Outcome:        VerifySuccess,
		Ppm:            ppm,
		RollHex:        cryptoutil.ToHex(roll),
		ServerSeedHash: c.ServerSeedHash,
	}, nil
}
