// Package theory has the little music theory the lab needs: keys, the
// diatonic chords of a major key and equal-tempered note frequencies.
package theory

import (
	"math"

	"github.com/pkg/errors"
)

// ErrUnknownNote is returned for a note name outside Keys.
var ErrUnknownNote = errors.New("unknown note")

// Keys are the twelve pitch classes, sharps only.
var Keys = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var majorScale = []int{0, 2, 4, 5, 7, 9, 11}

// octave 4 reference frequencies
var baseFreq = map[string]float64{
	"C": 261.63, "C#": 277.18, "D": 293.66, "D#": 311.13,
	"E": 329.63, "F": 349.23, "F#": 369.99, "G": 392.00,
	"G#": 415.30, "A": 440.00, "A#": 466.16, "B": 493.88,
}

// Quality of a triad.
type Quality int

const (
	Major Quality = iota
	Minor
	Diminished
)

func (q Quality) intervals() []int {
	switch q {
	case Minor:
		return []int{0, 3, 7}
	case Diminished:
		return []int{0, 3, 6}
	}
	return []int{0, 4, 7}
}

func (q Quality) suffix() string {
	switch q {
	case Minor:
		return "m"
	case Diminished:
		return "°"
	}
	return ""
}

// Chord is a diatonic triad.
type Chord struct {
	Name      string // e.g. "Dm"
	Roman     string // e.g. "ii"
	Nashville string // e.g. "2m"
	Quality   Quality
	Notes     []string
}

var (
	degreeQuality = []Quality{Major, Minor, Minor, Major, Major, Minor, Diminished}
	romans        = []string{"I", "ii", "iii", "IV", "V", "vi", "vii°"}
	nashville     = []string{"1", "2m", "3m", "4", "5", "6m", "7°"}
)

// Romans are the diatonic degrees of a major key in order.
func Romans() []string { return append([]string(nil), romans...) }

// index returns the pitch class of note.
func index(note string) (int, error) {
	for i, k := range Keys {
		if k == note {
			return i, nil
		}
	}
	return 0, errors.Wrap(ErrUnknownNote, note)
}

// Transpose moves note up by semitones, wrapping within the octave.
func Transpose(note string, semitones int) (string, error) {
	i, err := index(note)
	if err != nil {
		return "", err
	}
	return Keys[((i+semitones)%12+12)%12], nil
}

// MajorScale lists the seven notes of key's major scale.
func MajorScale(key string) ([]string, error) {
	notes := make([]string, len(majorScale))
	for i, st := range majorScale {
		n, err := Transpose(key, st)
		if err != nil {
			return nil, err
		}
		notes[i] = n
	}
	return notes, nil
}

// ChordsForKey returns I ii iii IV V vi vii° of the major key.
func ChordsForKey(key string) ([]Chord, error) {
	scale, err := MajorScale(key)
	if err != nil {
		return nil, err
	}
	chords := make([]Chord, len(scale))
	for i, root := range scale {
		q := degreeQuality[i]
		notes := make([]string, 0, 3)
		for _, iv := range q.intervals() {
			n, _ := Transpose(root, iv)
			notes = append(notes, n)
		}
		chords[i] = Chord{
			Name:      root + q.suffix(),
			Roman:     romans[i],
			Nashville: nashville[i],
			Quality:   q,
			Notes:     notes,
		}
	}
	return chords, nil
}

// ChordByRoman finds the degree named roman in key.
func ChordByRoman(key, roman string) (Chord, error) {
	chords, err := ChordsForKey(key)
	if err != nil {
		return Chord{}, err
	}
	for _, c := range chords {
		if c.Roman == roman {
			return c, nil
		}
	}
	return Chord{}, errors.Errorf("no degree %q in %s major", roman, key)
}

// SampleID is the cache id and file stem of a recorded chord, e.g. "C-I".
func SampleID(key, roman string) string {
	return key + "-" + roman
}

// Frequency of note in octave, from the octave 4 table.
func Frequency(note string, octave int) (float64, error) {
	f, ok := baseFreq[note]
	if !ok {
		return 0, errors.Wrap(ErrUnknownNote, note)
	}
	return f * math.Pow(2, float64(octave-4)), nil
}

// Frequencies maps notes to octave 4 frequencies, skipping unknown names.
func Frequencies(notes []string) []float64 {
	out := make([]float64, 0, len(notes))
	for _, n := range notes {
		if f, err := Frequency(n, 4); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// MIDINote is the MIDI key number of note in octave, with C4 = 60.
func MIDINote(note string, octave int) (uint8, error) {
	i, err := index(note)
	if err != nil {
		return 0, err
	}
	n := (octave+1)*12 + i
	if n < 0 || n > 127 {
		return 0, errors.Errorf("%s%d outside the MIDI range", note, octave)
	}
	return uint8(n), nil
}
