package velocity

import "testing"

func TestFingerprint(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"", ""},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36", "ch_120"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Edg/121.0.0.0", "edge_121"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0", "ff_128"},
		{"TelegramBot (like TwitterBot)", "tg_webapp"},
		{"Mozilla/5.0 (compatible; Googlebot/2.1)", "bot"},
		{"Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15", "sf_17"},
		{"some-custom-client/1.0", "unk"},
	}
	for _, tt := range tests {
		if got := Fingerprint(tt.ua); got != tt.want {
			t.Errorf("Fingerprint(%q) = %q, want %q", tt.ua, got, tt.want)
		}
	}
}

func TestTelegramMarkerWinsOverBot(t *testing.T) {
	if got := Fingerprint("TelegramBot"); got != "tg_webapp" {
		t.Errorf("Fingerprint(TelegramBot) = %q, want tg_webapp", got)
	}
}
