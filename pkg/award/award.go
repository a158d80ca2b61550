package award

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/platformclient"
)

type state string

const (
	stateInProgress state = "in_progress"
	stateCompleted  state = "completed"
)

type entry struct {
	state      state
	kind       string
	prizeID    string
	externalID string
}

// Platform is the subset of platformclient.Client this service calls.
type Platform interface {
	giftLister
	SendGift(ctx context.Context, userID int64, giftID string, payForUpgrade bool) error
	GiftPremiumSubscription(ctx context.Context, userID int64, monthCount int, starCount int64) error
}

// Refunder issues a best-effort refund when an award cannot be delivered.
type Refunder interface {
	RefundStar(ctx context.Context, userID int64, chargeID, reason string) error
}

// Service resolves the prize a Plan names and delivers it exactly once per
// charge.
type Service struct {
	mu      sync.Mutex
	journal map[string]*entry

	catalog  economy.Catalog
	platform Platform
	gifts    *giftCache
	refunder Refunder
	logger   *slog.Logger
}

// New creates an award Service.
func New(catalog economy.Catalog, platform Platform, refunder Refunder, logger *slog.Logger) *Service {
	return &Service{
		journal:  make(map[string]*entry),
		catalog:  catalog,
		platform: platform,
		gifts:    newGiftCache(platform),
		refunder: refunder,
		logger:   logger,
	}
}

// Schedule delivers plan's prize. A repeat call for a chargeID that already
// completed is a no-op; a repeat call while one is in flight is rejected so
// the caller can retry later rather than double-deliver.
func (s *Service) Schedule(ctx context.Context, plan Plan) error {
	s.mu.Lock()
	if e, ok := s.journal[plan.ChargeID]; ok {
		switch e.state {
		case stateCompleted:
			s.mu.Unlock()
			s.logger.Info("award duplicate, already completed", "charge_id", plan.ChargeID)
			return nil
		case stateInProgress:
			s.mu.Unlock()
			return fmt.Errorf("award: delivery already in progress for charge %q", plan.ChargeID)
		}
	}
	s.journal[plan.ChargeID] = &entry{state: stateInProgress}
	s.mu.Unlock()

	result, err := s.deliver(ctx, plan)
	if err != nil {
		s.mu.Lock()
		delete(s.journal, plan.ChargeID)
		s.mu.Unlock()

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}

		telemetry.AwardFailureTotal.Inc()
		s.logger.Error("award delivery failed", "charge_id", plan.ChargeID, "error", err)
		if plan.Currency == "XTR" && s.refunder != nil {
			reason := fmt.Sprintf("award failed: %v", err)
			if refundErr := s.refunder.RefundStar(context.WithoutCancel(ctx), plan.UserID, plan.ChargeID, reason); refundErr != nil {
				s.logger.Error("award-failure refund failed", "charge_id", plan.ChargeID, "error", refundErr)
			}
		}
		return fmt.Errorf("award: delivering prize: %w", err)
	}

	s.mu.Lock()
	s.journal[plan.ChargeID] = &entry{
		state: stateCompleted, kind: result.kind, prizeID: result.prizeID, externalID: result.externalID,
	}
	s.mu.Unlock()

	switch result.kind {
	case "gift":
		telemetry.AwardGiftTotal.Inc()
	case "premium":
		telemetry.AwardPremiumTotal.WithLabelValues(result.tier).Inc()
	case "internal":
		telemetry.AwardInternalTotal.Inc()
	}
	return nil
}

type deliveryResult struct {
	kind       string
	prizeID    string
	externalID string
	tier       string
}

// deliver resolves plan.ResultItemID against the case catalog and performs
// the matching external call, if any.
func (s *Service) deliver(ctx context.Context, plan Plan) (deliveryResult, error) {
	if plan.ResultItemID == nil {
		return deliveryResult{kind: "internal"}, nil
	}

	cfg, ok := s.catalog.Lookup(plan.CaseID)
	if !ok {
		return deliveryResult{}, fmt.Errorf("award: case %q not found", plan.CaseID)
	}
	item, ok := findItem(cfg, *plan.ResultItemID)
	if !ok {
		return deliveryResult{}, fmt.Errorf("award: prize item %q not found in case %q", *plan.ResultItemID, plan.CaseID)
	}

	switch item.Type {
	case economy.PrizeGift:
		return s.deliverGift(ctx, plan.UserID, item)
	case economy.PrizePremium3m, economy.PrizePremium6m, economy.PrizePremium12m:
		return s.deliverPremium(ctx, plan.UserID, item)
	case economy.PrizeInternal:
		return deliveryResult{kind: "internal", prizeID: item.ID}, nil
	default:
		return deliveryResult{}, fmt.Errorf("award: unknown prize type %q", item.Type)
	}
}

func findItem(cfg economy.CaseConfig, id string) (economy.PrizeItem, bool) {
	for _, it := range cfg.Items {
		if it.ID == id {
			return it, true
		}
	}
	return economy.PrizeItem{}, false
}

func (s *Service) deliverGift(ctx context.Context, userID int64, item economy.PrizeItem) (deliveryResult, error) {
	if item.StarCost == nil {
		return deliveryResult{}, fmt.Errorf("award: gift item %q has no starCost", item.ID)
	}
	gifts, err := s.gifts.get(ctx)
	if err != nil {
		return deliveryResult{}, fmt.Errorf("award: fetching available gifts: %w", err)
	}

	var matches []platformclient.Gift
	for _, g := range gifts {
		if g.StarCount == *item.StarCost {
			matches = append(matches, g)
		}
	}
	if len(matches) == 0 {
		return deliveryResult{}, fmt.Errorf("award: no gift matches star cost %d", *item.StarCost)
	}
	if len(matches) > 1 {
		s.logger.Warn("multiple gifts match star cost, using first", "star_cost", *item.StarCost, "count", len(matches))
	}

	chosen := matches[0]
	if err := s.platform.SendGift(ctx, userID, chosen.ID, false); err != nil {
		return deliveryResult{}, fmt.Errorf("award: sending gift: %w", err)
	}
	return deliveryResult{kind: "gift", prizeID: item.ID, externalID: chosen.ID}, nil
}

type premiumTier struct {
	months int
	stars  int64
	label  string
}

var premiumTiers = map[economy.PrizeType]premiumTier{
	economy.PrizePremium3m:  {3, 1000, "3m"},
	economy.PrizePremium6m:  {6, 1500, "6m"},
	economy.PrizePremium12m: {12, 2500, "12m"},
}

func (s *Service) deliverPremium(ctx context.Context, userID int64, item economy.PrizeItem) (deliveryResult, error) {
	tier, ok := premiumTiers[item.Type]
	if !ok {
		return deliveryResult{}, fmt.Errorf("award: unknown premium tier %q", item.Type)
	}
	if item.StarCost == nil || *item.StarCost != tier.stars {
		return deliveryResult{}, fmt.Errorf("award: premium item %q starCost does not match tier %s", item.ID, tier.label)
	}
	if err := s.platform.GiftPremiumSubscription(ctx, userID, tier.months, tier.stars); err != nil {
		return deliveryResult{}, fmt.Errorf("award: gifting premium subscription: %w", err)
	}
	return deliveryResult{kind: "premium", prizeID: item.ID, tier: tier.label}, nil
}
