// Package antifraud composes the suspicious-IP store, the token bucket
// rate limiter, and the velocity checker into a single admission
// decision: ban check, then IP bucket, then subject bucket, then velocity
// scoring.
package antifraud

import (
	"log/slog"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/ipguard"
	"github.com/wisbric/paygate/pkg/ratelimit"
	"github.com/wisbric/paygate/pkg/velocity"
)

// Config parameterizes the IP and subject token buckets. Velocity is the
// velocity checker config; pass velocity.Default() when the caller has no
// reason to deviate from it.
type Config struct {
	IPEnabled      bool
	IPParams       ratelimit.Params
	SubjectEnabled bool
	SubjectParams  ratelimit.Params
	Velocity       velocity.Config
}

// Verdict is the outcome of a Check call.
type Verdict struct {
	Allowed           bool
	Reason            string // empty when Allowed
	RetryAfterSeconds int64
}

// Event describes one request to admit. IP and SubjectID may each be zero
// valued: a Telegram-delivered update (pre-checkout, successful payment) has
// no network-visible IP, and an unauthenticated HTTP request has no subject
// until the mini-app signature is verified.
type Event struct {
	Type      velocity.EventType
	IP        string
	SubjectID *int64
	Path      string
	UA        string
}

// Gate is the antifraud admission point. One instance is shared across all
// request paths that can supply at least an IP or a subject ID.
type Gate struct {
	cfg      Config
	ipguard  *ipguard.Store
	buckets  ratelimit.Store
	velocity *velocity.Checker
	logger   *slog.Logger
}

// New creates a Gate. buckets is the token-bucket Store (memory or Redis
// backed); ipg is the suspicious-IP store shared with the admin surface so
// bans issued there take effect here immediately.
func New(cfg Config, ipg *ipguard.Store, buckets ratelimit.Store, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		ipguard:  ipg,
		buckets:  buckets,
		velocity: velocity.New(cfg.Velocity),
		logger:   logger,
	}
}

// Check runs the ban check, then the IP and subject token buckets, then the
// velocity checker, short-circuiting on the first denial.
func (g *Gate) Check(ev Event) Verdict {
	if ev.IP != "" {
		if banned, remaining := g.ipguard.IsBanned(ev.IP); banned {
			return Verdict{Reason: "ip_banned", RetryAfterSeconds: remaining}
		}

		if g.cfg.IPEnabled {
			d, err := g.buckets.TryConsume(ratelimit.IPKey(ev.IP), g.cfg.IPParams)
			if err != nil {
				g.logger.Error("ip token bucket check failed", "ip", ev.IP, "error", err)
			} else if !d.Allowed {
				telemetry.RateLimitDeniedTotal.WithLabelValues("ip").Inc()
				return Verdict{Reason: "ip_rate_limited", RetryAfterSeconds: d.RetryAfterSeconds}
			}
		}
	}

	if ev.SubjectID != nil && g.cfg.SubjectEnabled {
		d, err := g.buckets.TryConsume(ratelimit.SubjectKey(*ev.SubjectID), g.cfg.SubjectParams)
		if err != nil {
			g.logger.Error("subject token bucket check failed", "subject_id", *ev.SubjectID, "error", err)
		} else if !d.Allowed {
			telemetry.RateLimitDeniedTotal.WithLabelValues("subject").Inc()
			return Verdict{Reason: "subject_rate_limited", RetryAfterSeconds: d.RetryAfterSeconds}
		}
	}

	decision := g.velocity.CheckAndRecord(velocity.Event{
		Type:      ev.Type,
		IP:        ev.IP,
		SubjectID: ev.SubjectID,
		Path:      ev.Path,
		UA:        ev.UA,
	})
	telemetry.VelocityActionTotal.WithLabelValues(string(decision.Action)).Inc()

	if len(decision.Flags) > 0 {
		g.logger.Warn("velocity flags raised",
			"event_type", ev.Type, "ip", ev.IP, "score", decision.Score,
			"flags", decision.Flags, "action", decision.Action)
	}

	if decision.Action == velocity.ActionHardBlockBeforePayment {
		return Verdict{Reason: "velocity_hard_block"}
	}
	return Verdict{Allowed: true}
}
