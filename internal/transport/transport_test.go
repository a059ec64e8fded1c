package transport

import (
	"sync"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	tr := New()
	s := tr.Snapshot()
	if s.BPM != 120 {
		t.Fatalf("BPM = %d, want 120", s.BPM)
	}
	if s.TimeSignature != (TimeSignature{Numerator: 4, Denominator: 4}) {
		t.Fatalf("TimeSignature = %+v, want 4/4", s.TimeSignature)
	}
	if !s.ClickEnabled {
		t.Fatal("ClickEnabled = false, want true")
	}
	if s.IsPlaying {
		t.Fatal("IsPlaying = true, want false")
	}
}

func TestWritesVisibleImmediately(t *testing.T) {
	tr := New()
	tr.SetBPM(90)
	tr.SetTimeSignature(TimeSignature{Numerator: 3, Denominator: 4})
	tr.SetClickEnabled(false)
	tr.SetPlaying(true)

	if got := tr.BPM(); got != 90 {
		t.Fatalf("BPM = %d, want 90", got)
	}
	if got := tr.BeatsPerBar(); got != 3 {
		t.Fatalf("BeatsPerBar = %d, want 3", got)
	}
	if tr.ClickEnabled() {
		t.Fatal("ClickEnabled = true, want false")
	}
	if !tr.IsPlaying() {
		t.Fatal("IsPlaying = false, want true")
	}
}

func TestNoValidationAtThisLayer(t *testing.T) {
	tr := New()
	tr.SetBPM(0)
	if got := tr.BPM(); got != 0 {
		t.Fatalf("BPM = %d, want raw 0", got)
	}
	if got := tr.SecondsPerBeat(); got != 60.0/MinBPM {
		t.Fatalf("SecondsPerBeat = %v, want clamped %v", got, 60.0/MinBPM)
	}
}

func TestSubscribeOrderAndUnsubscribe(t *testing.T) {
	tr := New()
	var order []string
	var seen []int

	unsubA := tr.Subscribe(func(s State) {
		order = append(order, "a")
		seen = append(seen, s.BPM)
	})
	tr.Subscribe(func(State) { order = append(order, "b") })

	tr.SetBPM(100)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
	if seen[0] != 100 {
		t.Fatalf("subscriber saw BPM %d, want 100", seen[0])
	}

	unsubA()
	unsubA()
	order = nil
	tr.SetClickEnabled(false)
	if len(order) != 1 || order[0] != "b" {
		t.Fatalf("order after unsubscribe = %v, want [b]", order)
	}
}

func TestSubscriberMayReadTransport(t *testing.T) {
	tr := New()
	var got int
	tr.Subscribe(func(State) { got = tr.BPM() })
	tr.SetBPM(77)
	if got != 77 {
		t.Fatalf("read inside subscriber = %d, want 77", got)
	}
}

func TestConcurrentWritesNotifyInOrder(t *testing.T) {
	tr := New()
	var (
		seen  []int
		stale int
	)
	tr.Subscribe(func(s State) {
		seen = append(seen, s.BPM)
		if s.BPM != tr.BPM() {
			stale++
		}
	})

	const writers, writes = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				tr.SetBPM(MinBPM + (w*writes+i)%(MaxBPM-MinBPM))
			}
		}(w)
	}
	wg.Wait()

	if len(seen) != writers*writes {
		t.Fatalf("notifications = %d, want %d", len(seen), writers*writes)
	}
	if stale != 0 {
		t.Fatalf("stale notifications = %d, want 0", stale)
	}
	if last := seen[len(seen)-1]; last != tr.BPM() {
		t.Fatalf("last notified BPM = %d, want %d", last, tr.BPM())
	}
}

func TestClampBPM(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{10, 40},
		{40, 40},
		{120, 120},
		{200, 200},
		{260, 200},
	}
	for _, tt := range tests {
		if got := ClampBPM(tt.in); got != tt.want {
			t.Errorf("ClampBPM(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
