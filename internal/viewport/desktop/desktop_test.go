package desktop

import (
	"context"
	"errors"
	"testing"

	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

func TestClosedSessionReportsSessionClosed(t *testing.T) {
	ctx := context.Background()
	s := &Session{closed: true}
	tests := []struct {
		name string
		call func() error
	}{
		{"Login", func() error { return s.Login(ctx, viewport.Credentials{}) }},
		{"NavigateTo", func() error { return s.NavigateTo(ctx, 1, 2, 3) }},
		{"Screenshot", func() error { _, err := s.Screenshot(ctx); return err }},
		{"ClickAt", func() error { return s.ClickAt(ctx, 1, 2) }},
		{"ReadPopupText", func() error { _, err := s.ReadPopupText(ctx); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, viewport.ErrSessionClosed) {
				t.Errorf("err = %v, want ErrSessionClosed", err)
			}
		})
	}
}

func TestCloseAfterCloseIsNoop(t *testing.T) {
	s := &Session{closed: true}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
