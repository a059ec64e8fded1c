// Package transport holds the shared tempo, meter and play state of the lab.
package transport

import "sync"

const (
	DefaultBPM = 120
	MinBPM     = 40
	MaxBPM     = 200
)

// TimeSignature is a musical meter such as 4/4 or 6/8.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// State is a point-in-time copy of the transport.
type State struct {
	BPM           int
	TimeSignature TimeSignature
	ClickEnabled  bool
	IsPlaying     bool
}

// Transport is the single shared tempo/meter/play state. Writes are visible
// to every reader immediately and are not validated here; UI controls clamp
// before writing.
type Transport struct {
	// notifyMu serializes writes with their fan-out, so subscribers see
	// states in write order.
	notifyMu sync.Mutex

	mu    sync.RWMutex
	state State

	subMu  sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func(State)
}

// New returns a transport at 120 BPM, 4/4, click on, stopped.
func New() *Transport {
	return &Transport{
		state: State{
			BPM:           DefaultBPM,
			TimeSignature: TimeSignature{Numerator: 4, Denominator: 4},
			ClickEnabled:  true,
		},
	}
}

func (t *Transport) BPM() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.BPM
}

func (t *Transport) SetBPM(bpm int) {
	t.update(func(s *State) { s.BPM = bpm })
}

func (t *Transport) TimeSignature() TimeSignature {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.TimeSignature
}

func (t *Transport) SetTimeSignature(ts TimeSignature) {
	t.update(func(s *State) { s.TimeSignature = ts })
}

func (t *Transport) ClickEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.ClickEnabled
}

func (t *Transport) SetClickEnabled(enabled bool) {
	t.update(func(s *State) { s.ClickEnabled = enabled })
}

func (t *Transport) IsPlaying() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.IsPlaying
}

func (t *Transport) SetPlaying(playing bool) {
	t.update(func(s *State) { s.IsPlaying = playing })
}

// Snapshot returns a copy of the current state.
func (t *Transport) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// BeatsPerBar returns the meter numerator, never less than 1.
func (t *Transport) BeatsPerBar() int {
	n := t.TimeSignature().Numerator
	if n < 1 {
		return 1
	}
	return n
}

// SecondsPerBeat uses the clamped tempo so a bad write cannot divide by zero.
func (t *Transport) SecondsPerBeat() float64 {
	return 60 / float64(ClampBPM(t.BPM()))
}

// Subscribe registers fn to be called synchronously after every write, in
// subscription order. fn may read the transport but must not write it.
// The returned func removes the subscription.
func (t *Transport) Subscribe(fn func(State)) (unsubscribe func()) {
	t.subMu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber{id: id, fn: fn})
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			defer t.subMu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *Transport) update(mutate func(*State)) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	mutate(&t.state)
	snap := t.state
	t.mu.Unlock()

	t.subMu.Lock()
	subs := append([]subscriber(nil), t.subs...)
	t.subMu.Unlock()

	for _, s := range subs {
		s.fn(snap)
	}
}

// ClampBPM limits bpm to the range the tempo controls allow.
func ClampBPM(bpm int) int {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}
