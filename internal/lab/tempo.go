package lab

import (
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/transport"
)

// BindTempo copies the transport tempo into s now and after every change.
// Tempos the scheduler rejects leave its previous tempo in place.
func BindTempo(tr *transport.Transport, s *scheduler.Scheduler) (unbind func()) {
	s.SetBPM(float64(tr.BPM()))
	return tr.Subscribe(func(st transport.State) {
		s.SetBPM(float64(st.BPM))
	})
}
