package velocity

import (
	"testing"
	"time"
)

// TestHardBlockScenario covers a tight IP short-window cap combined with an
// invoice score boost: with ipShortMax=1, hardBlock=55, invoiceBoost=10,
// two invoice requests from the same IP within the short window — first
// allowed, second hard-blocked.
func TestHardBlockScenario(t *testing.T) {
	cfg := Default()
	cfg.IPShortMax = 1
	cfg.HardBlock = 55
	cfg.InvoiceBoost = 10
	cfg.Weights[FlagFastRepeatIPShort] = 50
	cfg.BoostFlags = map[string]bool{FlagFastRepeatIPShort: true}

	c := New(cfg)
	now := time.Unix(1000, 0)

	d1 := c.CheckAndRecord(Event{Type: EventInvoice, IP: "1.2.3.4", Path: "/invoice", Ts: now})
	if d1.Action == ActionHardBlockBeforePayment {
		t.Errorf("first request should not be hard blocked: %+v", d1)
	}

	d2 := c.CheckAndRecord(Event{Type: EventInvoice, IP: "1.2.3.4", Path: "/invoice", Ts: now.Add(time.Second)})
	if d2.Action != ActionHardBlockBeforePayment {
		t.Errorf("second request should be hard blocked, got %+v", d2)
	}
}

func TestNonInvoiceNeverHardBlocks(t *testing.T) {
	cfg := Default()
	cfg.IPShortMax = 0
	cfg.Weights[FlagFastRepeatIPShort] = 1000
	c := New(cfg)
	now := time.Unix(1000, 0)

	d := c.CheckAndRecord(Event{Type: EventOther, IP: "9.9.9.9", Path: "/x", Ts: now})
	if d.Action == ActionHardBlockBeforePayment {
		t.Errorf("non-invoice/precheckout event should never hard block, got %+v", d)
	}
}

// TestInvoiceShortMaxOverridesGlobalCap checks that the effective
// short-window cap of an invoice event is the larger of the global and
// per-type caps: a looser invoice cap lets invoice events through where the
// global IP cap alone would flag them, while other event types stay bound by
// the global cap.
func TestInvoiceShortMaxOverridesGlobalCap(t *testing.T) {
	cfg := Default()
	cfg.IPShortMax = 1
	cfg.InvoiceShortMax = 10

	c := New(cfg)
	now := time.Unix(1000, 0)

	c.CheckAndRecord(Event{Type: EventInvoice, IP: "5.5.5.5", Path: "/invoice", Ts: now})
	d := c.CheckAndRecord(Event{Type: EventInvoice, IP: "5.5.5.5", Path: "/invoice", Ts: now.Add(time.Second)})

	for _, f := range d.Flags {
		if f == FlagFastRepeatIPShort {
			t.Errorf("invoice event should be bound by the looser per-type cap, got %+v", d.Flags)
		}
	}

	other := c.CheckAndRecord(Event{Type: EventOther, IP: "5.5.5.5", Path: "/x", Ts: now.Add(2 * time.Second)})
	found := false
	for _, f := range other.Flags {
		if f == FlagFastRepeatIPShort {
			found = true
		}
	}
	if !found {
		t.Errorf("non-invoice event should be bound by the global cap, got %+v", other.Flags)
	}
}

func TestUAMismatchAndFlapping(t *testing.T) {
	cfg := Default()
	c := New(cfg)
	subj := int64(7)
	now := time.Unix(1000, 0)

	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"
	firefox := "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	safari := "Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15"
	c.CheckAndRecord(Event{Type: EventOther, IP: "1.1.1.1", SubjectID: &subj, UA: chrome, Ts: now})
	c.CheckAndRecord(Event{Type: EventOther, IP: "1.1.1.1", SubjectID: &subj, UA: firefox, Ts: now.Add(time.Second)})
	d := c.CheckAndRecord(Event{Type: EventOther, IP: "1.1.1.1", SubjectID: &subj, UA: safari, Ts: now.Add(2 * time.Second)})

	found := false
	for _, f := range d.Flags {
		if f == FlagUAFlapping || f == FlagUAMismatchRecent {
			found = true
		}
	}
	if !found {
		t.Errorf("expected UA mismatch/flapping flag after 3 different UAs, got %+v", d.Flags)
	}
}
