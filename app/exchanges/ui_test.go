package exchanges

import (
	"testing"
	"time"

	"github.com/ConserveLee/exchange-scout/internal/engine/exchange"
)

func TestFormatExchange(t *testing.T) {
	at := time.Date(2025, 3, 1, 14, 3, 22, 0, time.Local)
	tests := []struct {
		name string
		e    exchange.Exchange
		want string
	}{
		{"confirmed", exchange.Exchange{Kingdom: 111, X: 506, Y: 638, Confirmed: true, FoundAt: at, ScanDuration: 41600 * time.Millisecond},
			"K:111 X:506 Y:638 confirmed at 14:03:22 (scan 42s)"},
		{"estimated", exchange.Exchange{Kingdom: 7, X: 1, Y: 2},
			"K:7 X:1 Y:2 estimated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatExchange(tt.e); got != tt.want {
				t.Errorf("formatExchange() = %q, want %q", got, tt.want)
			}
		})
	}
}
