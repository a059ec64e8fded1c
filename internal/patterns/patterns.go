// Package patterns stores step sequencer patterns and exports them as
// Standard MIDI Files.
package patterns

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// NumSteps is the length of every pattern row.
const NumSteps = 8

// ErrNotFound is returned for an unknown pattern id.
var ErrNotFound = errors.New("pattern not found")

// Steps holds one activation row per drum, 1 for a hit.
type Steps struct {
	Kick  []int `json:"kick"`
	Snare []int `json:"snare"`
	Hat   []int `json:"hat"`
	Ride  []int `json:"ride"`
}

// DefaultSteps is the starter beat: four on the floor kick, backbeat
// snare, straight hats.
func DefaultSteps() Steps {
	return Steps{
		Kick:  []int{1, 0, 0, 0, 1, 0, 0, 0},
		Snare: []int{0, 0, 1, 0, 0, 0, 1, 0},
		Hat:   []int{1, 1, 1, 1, 1, 1, 1, 1},
		Ride:  make([]int, NumSteps),
	}
}

// EmptySteps has every step off.
func EmptySteps() Steps {
	return Steps{
		Kick:  make([]int, NumSteps),
		Snare: make([]int, NumSteps),
		Hat:   make([]int, NumSteps),
		Ride:  make([]int, NumSteps),
	}
}

// Rows returns the rows in kick, snare, hat, ride order.
func (s Steps) Rows() [4][]int {
	return [4][]int{s.Kick, s.Snare, s.Hat, s.Ride}
}

// FromRows is the inverse of Rows. Each row is copied and padded or cut to
// NumSteps with any non-zero value stored as 1.
func FromRows(rows [4][]int) Steps {
	var out [4][]int
	for i, r := range rows {
		out[i] = make([]int, NumSteps)
		for j := 0; j < NumSteps && j < len(r); j++ {
			if r[j] != 0 {
				out[i][j] = 1
			}
		}
	}
	return Steps{Kick: out[0], Snare: out[1], Hat: out[2], Ride: out[3]}
}

// Clone deep-copies s, normalized to NumSteps.
func (s Steps) Clone() Steps { return FromRows(s.Rows()) }

// Pattern is a saved beat.
type Pattern struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	BPM       int       `json:"bpm"`
	Steps     Steps     `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists patterns.
type Store interface {
	// List returns every pattern, most recently updated first.
	List(ctx context.Context) ([]Pattern, error)
	Get(ctx context.Context, id string) (Pattern, error)
	// Save assigns an id and creation time to new patterns and stamps the
	// update time.
	Save(ctx context.Context, p *Pattern) error
	Delete(ctx context.Context, id string) error
}
