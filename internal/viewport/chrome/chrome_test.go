package chrome

import (
	"context"
	"errors"
	"testing"

	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

// deadSession is a session whose browser context is already gone.
func deadSession() *Session {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return &Session{ctx: ctx, cancel: func() {}, opts: Options{GameURL: defaultGameURL}}
}

func TestClosedBrowserReportsSessionClosed(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(*Session) error
		kind error
	}{
		{"NavigateTo", func(s *Session) error { return s.NavigateTo(ctx, 1, 2, 3) }, viewport.ErrNavigationFailed},
		{"Screenshot", func(s *Session) error { _, err := s.Screenshot(ctx); return err }, viewport.ErrScreenshotFailed},
		{"ClickAt", func(s *Session) error { return s.ClickAt(ctx, 1, 2) }, viewport.ErrClickFailed},
		{"ReadPopupText", func(s *Session) error { _, err := s.ReadPopupText(ctx); return err }, viewport.ErrSessionClosed},
		{"Login", func(s *Session) error { return s.Login(ctx, viewport.Credentials{}) }, viewport.ErrLoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(deadSession())
			if !errors.Is(err, viewport.ErrSessionClosed) {
				t.Errorf("err = %v, want ErrSessionClosed", err)
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	calls := 0
	s := &Session{ctx: context.Background(), cancel: func() { calls++ }, profile: t.TempDir()}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
}
