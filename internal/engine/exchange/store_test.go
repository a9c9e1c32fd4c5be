package exchange

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAddDeduplicatesWithinWindow(t *testing.T) {
	s := NewStore()
	ex := Exchange{Kingdom: 111, X: 506, Y: 638, Confirmed: true}

	if !s.Add(ex, t0) {
		t.Fatal("first add was not stored")
	}
	if s.Add(ex, t0.Add(4*time.Minute+59*time.Second)) {
		t.Fatal("duplicate inside the window was stored")
	}
	if s.Len() != 1 {
		t.Fatalf("store has %d exchanges, want 1", s.Len())
	}
	if !s.Add(ex, t0.Add(5*time.Minute)) {
		t.Fatal("add after the window was rejected")
	}
	if s.Len() != 2 {
		t.Fatalf("store has %d exchanges, want 2", s.Len())
	}
}

func TestAddDistinguishesKingdomAndCoordinates(t *testing.T) {
	s := NewStore()
	s.Add(Exchange{Kingdom: 111, X: 1, Y: 2}, t0)
	if !s.Add(Exchange{Kingdom: 112, X: 1, Y: 2}, t0) {
		t.Error("other kingdom treated as duplicate")
	}
	if !s.Add(Exchange{Kingdom: 111, X: 1, Y: 3}, t0) {
		t.Error("other coordinates treated as duplicate")
	}
}

func TestAddClampsCoordinates(t *testing.T) {
	s := NewStore()
	s.Add(Exchange{Kingdom: 1, X: -20, Y: 5000}, t0)
	got, _ := s.Get(0)
	if got.X != 0 || got.Y != 1023 {
		t.Fatalf("stored (%d,%d), want (0,1023)", got.X, got.Y)
	}
	if s.Add(Exchange{Kingdom: 1, X: -1, Y: 1024}, t0) {
		t.Fatal("clamped duplicate was stored")
	}
}

func TestAddStampsFoundAt(t *testing.T) {
	s := NewStore()
	s.Add(Exchange{Kingdom: 1, X: 1, Y: 1}, t0)
	got, _ := s.Get(0)
	if !got.FoundAt.Equal(t0) {
		t.Fatalf("FoundAt = %v, want %v", got.FoundAt, t0)
	}
}

func TestForKingdomReturnsMostRecent(t *testing.T) {
	s := NewStore()
	s.Add(Exchange{Kingdom: 5, X: 10, Y: 10}, t0)
	s.Add(Exchange{Kingdom: 5, X: 20, Y: 20}, t0.Add(time.Minute))
	s.Add(Exchange{Kingdom: 6, X: 30, Y: 30}, t0.Add(2*time.Minute))

	got, ok := s.ForKingdom(5)
	if !ok || got.X != 20 {
		t.Fatalf("ForKingdom(5) = %+v, %v", got, ok)
	}
	if _, ok := s.ForKingdom(7); ok {
		t.Fatal("ForKingdom(7) found an exchange")
	}
}

func TestRefreshAndRemove(t *testing.T) {
	s := NewStore()
	s.Add(Exchange{Kingdom: 5, X: 10, Y: 10}, t0)
	s.Add(Exchange{Kingdom: 5, X: 40, Y: 40}, t0)
	s.Add(Exchange{Kingdom: 6, X: 10, Y: 10}, t0)

	later := t0.Add(3 * time.Minute)
	if !s.Refresh(5, 10, 10, later) {
		t.Fatal("Refresh found nothing")
	}
	got, _ := s.ForKingdom(5)
	if got.X != 10 || !got.FoundAt.Equal(later) {
		t.Fatalf("refreshed exchange = %+v", got)
	}
	if s.Refresh(9, 10, 10, later) {
		t.Fatal("Refresh of a missing exchange succeeded")
	}

	if n := s.Remove(5); n != 2 {
		t.Fatalf("Remove removed %d, want 2", n)
	}
	if s.Len() != 1 {
		t.Fatalf("store has %d exchanges, want 1", s.Len())
	}
	if ex, ok := s.Get(0); !ok || ex.Kingdom != 6 {
		t.Fatalf("remaining exchange = %+v, want kingdom 6", ex)
	}
}

func TestLastScan(t *testing.T) {
	s := NewStore()
	if _, ok := s.LastScan(3); ok {
		t.Fatal("unscanned kingdom has a last scan")
	}
	s.SetLastScan(3, t0)
	s.Clear()
	got, ok := s.LastScan(3)
	if !ok || !got.Equal(t0) {
		t.Fatalf("LastScan = %v, %v; Clear must keep scan history", got, ok)
	}
}

func TestListIsACopy(t *testing.T) {
	s := NewStore()
	s.Add(Exchange{Kingdom: 1, X: 1, Y: 1}, t0)
	l := s.List()
	l[0].X = 99
	if got, _ := s.Get(0); got.X != 1 {
		t.Fatal("List exposed internal storage")
	}
}
