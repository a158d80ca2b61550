// Package velocity implements the rolling-window event correlator: per-IP
// and per-subject counters that raise flags and produce a weighted risk
// score and admission action.
package velocity

import (
	"sync"
	"time"
)

// EventType tags the kind of event being checked.
type EventType string

const (
	EventInvoice     EventType = "invoice"
	EventPreCheckout EventType = "pre_checkout"
	EventOther       EventType = "other"
)

// Action is the admission decision for an event.
type Action string

const (
	ActionLogOnly                Action = "log_only"
	ActionSoftCap                Action = "soft_cap"
	ActionHardBlockBeforePayment Action = "hard_block_before_payment"
)

// Flag names raised by CheckAndRecord.
const (
	FlagFastRepeatIPShort      = "FAST_REPEAT_IP_SHORT"
	FlagFastRepeatIPLong       = "FAST_REPEAT_IP_LONG"
	FlagPathThrashIP           = "PATH_THRASH_IP"
	FlagFastRepeatSubjectShort = "FAST_REPEAT_SUBJECT_SHORT"
	FlagFastRepeatSubjectLong  = "FAST_REPEAT_SUBJECT_LONG"
	FlagPathThrashSubject      = "PATH_THRASH_SUBJECT"
	FlagUAMismatchRecent       = "UA_MISMATCH_RECENT"
	FlagUAFlapping             = "UA_FLAPPING"
)

// Event is a single request observation fed to checkAndRecord.
type Event struct {
	Type      EventType
	IP        string
	SubjectID *int64
	Path      string
	UA        string
	Ts        time.Time
}

// Decision is the outcome of checkAndRecord.
type Decision struct {
	Score  int
	Flags  []string
	Action Action
}

// Config parameterizes window sizes, per-flag caps, and score weights. All
// fields must be set by the caller; Default returns reasonable values.
type Config struct {
	ShortWindow time.Duration
	LongWindow  time.Duration
	UATTL       time.Duration

	IPShortMax      int
	IPLongMax       int
	PathThrashIPMax int

	SubjectShortMax      int
	SubjectLongMax       int
	PathThrashSubjectMax int
	SubjectUAMismatchMax int

	// InvoiceShortMax and PreCheckoutShortMax are per-type short-window caps
	// (both IP-side and subject-side) for events of that type. A flag is
	// raised only when the count exceeds max(global cap, per-type cap), so a
	// per-type cap can raise the threshold for its event type but never
	// lower it below the global cap; 0 leaves the global cap as the bound.
	InvoiceShortMax     int
	PreCheckoutShortMax int

	Weights map[string]int

	InvoiceBoost     int
	PreCheckoutBoost int
	BoostFlags       map[string]bool

	SoftCap   int
	HardBlock int
}

// Default returns a Config with reasonable window sizes, caps, and weights.
func Default() Config {
	return Config{
		ShortWindow:          10 * time.Second,
		LongWindow:           10 * time.Minute,
		UATTL:                30 * time.Minute,
		IPShortMax:           5,
		IPLongMax:            60,
		PathThrashIPMax:      4,
		SubjectShortMax:      3,
		SubjectLongMax:       30,
		PathThrashSubjectMax: 3,
		SubjectUAMismatchMax: 2,
		Weights: map[string]int{
			FlagFastRepeatIPShort:      20,
			FlagFastRepeatIPLong:       10,
			FlagPathThrashIP:           15,
			FlagFastRepeatSubjectShort: 25,
			FlagFastRepeatSubjectLong:  15,
			FlagPathThrashSubject:      20,
			FlagUAMismatchRecent:       20,
			FlagUAFlapping:             30,
		},
		InvoiceBoost:     10,
		PreCheckoutBoost: 15,
		BoostFlags: map[string]bool{
			FlagFastRepeatIPShort:      true,
			FlagFastRepeatSubjectShort: true,
		},
		SoftCap:   35,
		HardBlock: 55,
	}
}

type ipState struct {
	mu          sync.Mutex
	hits        []int64 // unix ms, pruned to long window
	paths       map[string]int64
	expiresAtMs int64
}

type subjectState struct {
	mu               sync.Mutex
	hits             []int64
	paths            map[string]int64
	lastUaFp         string
	uaMismatchCount  int
	uaSetAtMs        int64
	expiresAtMs      int64
}

// Checker is the velocity engine. One instance is shared across all
// requests; per-key state is guarded by a per-entry mutex.
type Checker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	ipStates map[string]*ipState
	subjects map[int64]*subjectState
}

// New creates a Checker with the given config.
func New(cfg Config) *Checker {
	return &Checker{
		cfg:      cfg,
		now:      time.Now,
		ipStates: make(map[string]*ipState),
		subjects: make(map[int64]*subjectState),
	}
}

func (c *Checker) getIPState(ip string, nowMs int64) *ipState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.ipStates[ip]
	if !ok || nowMs >= st.expiresAtMs {
		st = &ipState{paths: make(map[string]int64)}
		c.ipStates[ip] = st
	}
	return st
}

func (c *Checker) getSubjectState(id int64, nowMs int64) *subjectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.subjects[id]
	if !ok || nowMs >= st.expiresAtMs {
		st = &subjectState{paths: make(map[string]int64)}
		c.subjects[id] = st
	}
	return st
}

func pruneHits(hits []int64, cutoffMs int64) []int64 {
	out := hits[:0]
	for _, h := range hits {
		if h >= cutoffMs {
			out = append(out, h)
		}
	}
	return out
}

func prunePaths(paths map[string]int64, cutoffMs int64) {
	for p, ts := range paths {
		if ts < cutoffMs {
			delete(paths, p)
		}
	}
}

func countSince(hits []int64, cutoffMs int64) int {
	n := 0
	for _, h := range hits {
		if h >= cutoffMs {
			n++
		}
	}
	return n
}

// CheckAndRecord records the event and returns the resulting decision:
// it updates IP and subject counters, raises flags, scores them, and
// derives an admission action.
func (c *Checker) CheckAndRecord(ev Event) Decision {
	ts := ev.Ts
	if ts.IsZero() {
		ts = c.now()
	}
	nowMs := ts.UnixMilli()
	shortCutoff := nowMs - c.cfg.ShortWindow.Milliseconds()
	longCutoff := nowMs - c.cfg.LongWindow.Milliseconds()

	flagSet := make(map[string]bool)

	// --- IP side ---
	ipSt := c.getIPState(ev.IP, nowMs)
	ipSt.mu.Lock()
	ipSt.hits = pruneHits(ipSt.hits, longCutoff)
	ipSt.hits = append(ipSt.hits, nowMs)
	prunePaths(ipSt.paths, shortCutoff)
	if ev.Path != "" {
		ipSt.paths[ev.Path] = nowMs
	}
	ipShortCount := countSince(ipSt.hits, shortCutoff)
	ipLongCount := len(ipSt.hits)
	ipDistinctPaths := len(ipSt.paths)
	ipSt.expiresAtMs = nowMs + c.cfg.LongWindow.Milliseconds()
	ipSt.mu.Unlock()

	if ipShortCount > max(max(c.cfg.IPShortMax, 0), c.typeShortMax(ev.Type)) {
		flagSet[FlagFastRepeatIPShort] = true
	}
	if ipLongCount > max(c.cfg.IPLongMax, 0) {
		flagSet[FlagFastRepeatIPLong] = true
	}
	if ipDistinctPaths > max(c.cfg.PathThrashIPMax, 0) {
		flagSet[FlagPathThrashIP] = true
	}

	// --- Subject side ---
	if ev.SubjectID != nil {
		subSt := c.getSubjectState(*ev.SubjectID, nowMs)
		subSt.mu.Lock()

		subSt.hits = pruneHits(subSt.hits, longCutoff)
		subSt.hits = append(subSt.hits, nowMs)
		prunePaths(subSt.paths, shortCutoff)
		if ev.Path != "" {
			subSt.paths[ev.Path] = nowMs
		}
		subShortCount := countSince(subSt.hits, shortCutoff)
		subLongCount := len(subSt.hits)
		subDistinctPaths := len(subSt.paths)

		uaTTLms := c.cfg.UATTL.Milliseconds()
		if subSt.uaSetAtMs != 0 && nowMs-subSt.uaSetAtMs > uaTTLms {
			subSt.uaMismatchCount = 0
			subSt.lastUaFp = ""
		}
		fp := Fingerprint(ev.UA)
		if fp != "" {
			if subSt.lastUaFp == "" {
				subSt.lastUaFp = fp
				subSt.uaSetAtMs = nowMs
			} else if subSt.lastUaFp != fp {
				if subSt.uaSetAtMs != 0 && nowMs-subSt.uaSetAtMs <= uaTTLms {
					subSt.uaMismatchCount++
				} else {
					subSt.uaMismatchCount = 1
				}
				subSt.lastUaFp = fp
				subSt.uaSetAtMs = nowMs
			}
		}

		uaMismatchCount := subSt.uaMismatchCount
		uaSetAtMs := subSt.uaSetAtMs
		subSt.expiresAtMs = nowMs + max64(c.cfg.LongWindow.Milliseconds(), uaTTLms)
		subSt.mu.Unlock()

		if subShortCount > max(max(c.cfg.SubjectShortMax, 0), c.typeShortMax(ev.Type)) {
			flagSet[FlagFastRepeatSubjectShort] = true
		}
		if subLongCount > max(c.cfg.SubjectLongMax, 0) {
			flagSet[FlagFastRepeatSubjectLong] = true
		}
		if subDistinctPaths > max(c.cfg.PathThrashSubjectMax, 0) {
			flagSet[FlagPathThrashSubject] = true
		}
		if uaMismatchCount >= c.cfg.SubjectUAMismatchMax {
			flagSet[FlagUAMismatchRecent] = true
		}
		if uaMismatchCount >= 2 && uaSetAtMs != 0 && nowMs-uaSetAtMs <= c.cfg.ShortWindow.Milliseconds() {
			flagSet[FlagUAFlapping] = true
		}
	}

	score := 0
	boost := false
	for f := range flagSet {
		score += c.cfg.Weights[f]
		if c.cfg.BoostFlags[f] {
			boost = true
		}
	}
	if boost {
		switch ev.Type {
		case EventInvoice:
			score += c.cfg.InvoiceBoost
		case EventPreCheckout:
			score += c.cfg.PreCheckoutBoost
		}
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	flags := make([]string, 0, len(flagSet))
	for f := range flagSet {
		flags = append(flags, f)
	}

	action := ActionLogOnly
	if ev.Type == EventInvoice || ev.Type == EventPreCheckout {
		if score >= c.cfg.HardBlock {
			action = ActionHardBlockBeforePayment
		} else if score >= c.cfg.SoftCap {
			action = ActionSoftCap
		}
	}

	return Decision{Score: score, Flags: flags, Action: action}
}

// typeShortMax returns the per-event-type short-window override for evType,
// or 0 if none applies (invoice and pre-checkout are the only event types
// with their own cap; 0 leaves the global cap as the sole bound).
func (c *Checker) typeShortMax(evType EventType) int {
	switch evType {
	case EventInvoice:
		return c.cfg.InvoiceShortMax
	case EventPreCheckout:
		return c.cfg.PreCheckoutShortMax
	default:
		return 0
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
