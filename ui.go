package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/SirSobhan0/songbuddy/internal/lab"
	"github.com/SirSobhan0/songbuddy/internal/patterns"
	"github.com/SirSobhan0/songbuddy/internal/theory"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

// --- 1. MODES & KEYS ---

type mode int

const (
	modePiano mode = iota
	modeMetronome
	modeDrums
	modeChords
	numModes
)

var modeNames = [...]string{"Piano", "Metronome", "808", "Chords"}

func (m mode) String() string { return modeNames[m] }

type pianoKey struct {
	Key, Name, Note string
}

// One octave on the home row, sharps on the row above.
var pianoKeys = []pianoKey{
	{"a", "Do", "C"}, {"w", "Do#", "C#"}, {"s", "Re", "D"}, {"e", "Re#", "D#"},
	{"d", "Mi", "E"}, {"f", "Fa", "F"}, {"t", "Fa#", "F#"}, {"g", "Sol", "G"},
	{"y", "Sol#", "G#"}, {"h", "La", "A"}, {"u", "La#", "A#"}, {"j", "Si", "B"},
}

var pianoByKey = func() map[string]pianoKey {
	out := make(map[string]pianoKey, len(pianoKeys))
	for _, k := range pianoKeys {
		out[k.Key] = k
	}
	return out
}()

var meters = []transport.TimeSignature{
	{Numerator: 4, Denominator: 4},
	{Numerator: 3, Denominator: 4},
	{Numerator: 2, Denominator: 4},
	{Numerator: 6, Denominator: 8},
}

// Terminals send no key-up, so a note is held while its key repeats and
// released once the repeats stop.
const (
	sustainTimeout  = 600 * time.Millisecond
	staccatoTimeout = 100 * time.Millisecond
	volumeStep      = 0.1
)

// --- 2. MESSAGES ---

type tickMsg time.Time
type beatMsg int
type stepMsg int
type chordMsg struct {
	bar   int
	chord theory.Chord
}
type statusMsg string
type patternMsg patterns.Pattern
type assetsMsg struct{}

type keyState struct {
	lastSeen time.Time
	staccato bool
}

// --- 3. MODEL ---

type model struct {
	ctx   context.Context
	lab   *lab.Lab
	store patterns.Store
	base  string

	mode    mode
	running map[mode]bool
	loading <-chan struct{}

	held map[string]*keyState
	beat int
	step int
	bar  int
	cur  [2]int // drum row, step

	status   string
	width    int
	height   int
	spectrum []float64
}

const numBars = 42

func newModel(ctx context.Context, l *lab.Lab, store patterns.Store, base string) model {
	return model{
		ctx:      ctx,
		lab:      l,
		store:    store,
		base:     base,
		running:  make(map[mode]bool),
		held:     make(map[string]*keyState),
		status:   "loading samples...",
		spectrum: make([]float64, numBars),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Millisecond*30, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitAssets(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return assetsMsg{}
	}
}

func (m model) Init() tea.Cmd {
	if m.loading == nil {
		return tick()
	}
	return tea.Batch(tick(), waitAssets(m.loading))
}

// freqToBucket maps a frequency logarithmically to our visualizer bars
func freqToBucket(freq float64) int {
	minF, maxF := 100.0, 4000.0
	freq = min(max(freq, minF), maxF)
	ratio := math.Log(freq/minF) / math.Log(maxF/minF)
	return min(int(ratio*float64(numBars)), numBars-1)
}

func (m model) excite(freq, level float64) {
	for h, amt := range []float64{1, 0.5, 0.25, 0.1} {
		b := freqToBucket(freq * float64(h+1))
		m.spectrum[b] = min(m.spectrum[b]+amt*level, 1)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.releaseStale(time.Time(msg))
		for i := range m.spectrum {
			m.spectrum[i] *= 0.82
		}
		oct := m.lab.Piano.Octave()
		for k := range m.held {
			if f, err := theory.Frequency(pianoByKey[k].Note, oct); err == nil {
				m.excite(f, 1)
			}
		}
		return m, tick()

	case beatMsg:
		m.beat = int(msg)
		level := 0.6
		if m.beat == 1 {
			level = 1
		}
		m.excite(1000, level)
		return m, nil

	case stepMsg:
		m.step = int(msg)
		return m, nil

	case chordMsg:
		m.bar = msg.bar
		for _, f := range theory.Frequencies(msg.chord.Notes) {
			m.excite(f, 0.8)
		}
		return m, nil

	case assetsMsg:
		m.status = fmt.Sprintf("%d samples loaded", m.lab.Cache.Len())
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case patternMsg:
		p := patterns.Pattern(msg)
		m.lab.Sequencer.SetPattern(p.Steps)
		if p.BPM > 0 {
			m.lab.Transport.SetBPM(transport.ClampBPM(p.BPM))
		}
		m.status = "loaded " + patternLabel(p)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEscape:
		m.stopAll()
		return m, tea.Quit

	case tea.KeySpace:
		if err := m.togglePlay(); err != nil {
			m.status = err.Error()
		}
		return m, nil

	case tea.KeyTab:
		m.mode = (m.mode + 1) % numModes
		return m, nil
	}

	switch msg.String() {
	case "+", "=":
		m.nudgeBPM(1)
		return m, nil
	case "-", "_":
		m.nudgeBPM(-1)
		return m, nil
	}

	switch m.mode {
	case modePiano:
		return m.pianoKey(msg)
	case modeMetronome:
		return m.metronomeKey(msg)
	case modeDrums:
		return m.drumKey(msg)
	case modeChords:
		return m.chordKey(msg)
	}
	return m, nil
}

func (m model) nudgeBPM(d int) {
	tr := m.lab.Transport
	tr.SetBPM(transport.ClampBPM(tr.BPM() + d))
}

// togglePlay starts or stops what the current mode plays. Only one mode
// plays at a time.
func (m model) togglePlay() error {
	if m.running[m.mode] {
		m.stopAll()
		return nil
	}
	m.stopAll()
	var err error
	switch m.mode {
	case modeMetronome:
		err = m.lab.Metronome.Play(m.ctx)
	case modeDrums:
		err = m.lab.Sequencer.Play(m.ctx)
	case modeChords:
		if err = m.lab.Metronome.Play(m.ctx); err == nil {
			err = m.lab.Chords.Play(m.ctx)
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}
	m.running[m.mode] = true
	return nil
}

func (m model) stopAll() {
	switch {
	case m.running[modeDrums]:
		m.lab.Sequencer.Stop()
	case m.running[modeChords]:
		m.lab.Chords.Stop()
		m.lab.Metronome.Pause()
	case m.running[modeMetronome]:
		m.lab.Metronome.Pause()
	}
	m.lab.Highlighter.CancelAll()
	clear(m.running)
}

func (m model) pianoKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	input := msg.String()
	lower := strings.ToLower(input)
	switch lower {
	case "z":
		m.releaseAll()
		m.lab.Piano.SetOctave(m.lab.Piano.Octave() - 1)
		return m, nil
	case "x":
		m.releaseAll()
		m.lab.Piano.SetOctave(m.lab.Piano.Octave() + 1)
		return m, nil
	}
	k, ok := pianoByKey[lower]
	if !ok {
		return m, nil
	}
	staccato := input != lower // shift held
	if s, ok := m.held[lower]; ok {
		s.lastSeen = time.Now()
		s.staccato = staccato
		return m, nil
	}
	if m.lab.Piano.NoteOn(k.Note) {
		m.held[lower] = &keyState{lastSeen: time.Now(), staccato: staccato}
	}
	return m, nil
}

func (m model) releaseStale(now time.Time) {
	for k, s := range m.held {
		limit := sustainTimeout
		if s.staccato {
			limit = staccatoTimeout
		}
		if now.Sub(s.lastSeen) > limit {
			m.lab.Piano.NoteOff(pianoByKey[k].Note)
			delete(m.held, k)
		}
	}
}

func (m model) releaseAll() {
	m.lab.Piano.ReleaseAll()
	clear(m.held)
}

func (m model) metronomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tr := m.lab.Transport
	switch msg.String() {
	case "c":
		tr.SetClickEnabled(!tr.ClickEnabled())
	case "m":
		cur := tr.TimeSignature()
		next := meters[0]
		for i, ts := range meters {
			if ts == cur {
				next = meters[(i+1)%len(meters)]
			}
		}
		tr.SetTimeSignature(next)
	}
	return m, nil
}

func (m model) drumKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	q := m.lab.Sequencer
	kind := voice.Drums[m.cur[0]]
	switch msg.String() {
	case "up":
		m.cur[0] = (m.cur[0] + len(voice.Drums) - 1) % len(voice.Drums)
	case "down":
		m.cur[0] = (m.cur[0] + 1) % len(voice.Drums)
	case "left":
		m.cur[1] = (m.cur[1] + patterns.NumSteps - 1) % patterns.NumSteps
	case "right":
		m.cur[1] = (m.cur[1] + 1) % patterns.NumSteps
	case "enter", "x":
		q.Toggle(kind, m.cur[1])
	case "d":
		q.SetDouble(kind, !q.Double(kind))
	case "[":
		q.SetVolume(kind, q.Volume(kind)-volumeStep)
	case "]":
		q.SetVolume(kind, q.Volume(kind)+volumeStep)
	case "c":
		q.Clear()
	case "s":
		p := patterns.Pattern{BPM: m.lab.Transport.BPM(), Steps: q.Pattern()}
		return m, savePattern(m.ctx, m.store, p)
	case "o":
		return m, loadLatest(m.ctx, m.store)
	}
	return m, nil
}

func (m model) chordKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var d int
	switch msg.String() {
	case "left":
		d = len(theory.Keys) - 1
	case "right":
		d = 1
	default:
		return m, nil
	}
	cur := 0
	for i, k := range theory.Keys {
		if k == m.lab.Chords.Key() {
			cur = i
		}
	}
	key := theory.Keys[(cur+d)%len(theory.Keys)]
	if err := m.lab.Chords.SetKey(key); err != nil {
		m.status = err.Error()
		return m, nil
	}
	m.status = "loading " + key + " chords..."
	done := m.lab.Cache.PreloadAsync(m.ctx, lab.Assets(m.base, key))
	return m, func() tea.Msg {
		<-done
		return statusMsg("key of " + key)
	}
}

func patternLabel(p patterns.Pattern) string {
	if p.Name != "" {
		return p.Name
	}
	if len(p.ID) >= 8 {
		return p.ID[:8]
	}
	return p.ID
}

func savePattern(ctx context.Context, s patterns.Store, p patterns.Pattern) tea.Cmd {
	return func() tea.Msg {
		if err := s.Save(ctx, &p); err != nil {
			return statusMsg("save failed: " + err.Error())
		}
		return statusMsg("saved " + patternLabel(p))
	}
}

func loadLatest(ctx context.Context, s patterns.Store) tea.Cmd {
	return func() tea.Msg {
		saved, err := s.List(ctx)
		if err != nil {
			return statusMsg("load failed: " + err.Error())
		}
		if len(saved) == 0 {
			return statusMsg("no saved patterns")
		}
		return patternMsg(saved[0])
	}
}

// --- STYLES ---
var (
	accent = lipgloss.Color("#00E6C3")

	panelStyle = lipgloss.NewStyle().
			Padding(1, 3).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("#444444"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			MarginBottom(1).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Foreground(accent).
			Background(lipgloss.Color("#111111")).
			Bold(true)

	visStyle = lipgloss.NewStyle().
			MarginBottom(1)

	waveColor = lipgloss.NewStyle().
			Foreground(accent)

	keyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#AAAAAA")).
			Width(5).
			Height(3).
			Align(lipgloss.Center)

	activeKeyStyle = keyStyle.
			BorderForeground(accent).
			Foreground(lipgloss.Color("#000000")).
			Background(accent).
			Bold(true)

	cellStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")).Width(3).Align(lipgloss.Center)
	onCellStyle  = cellStyle.Foreground(accent)
	nowCellStyle = cellStyle.Background(lipgloss.Color("#222222"))
	cursorStyle  = cellStyle.Underline(true).Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4")).
			Width(7).
			Align(lipgloss.Right).
			MarginRight(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)
)

var helps = [...]string{
	modePiano:     "KEYS: Play  •  SHIFT+KEY: Short  •  Z/X: Octave",
	modeMetronome: "SPACE: Start/Stop  •  C: Click  •  M: Meter",
	modeDrums:     "SPACE: Start/Stop  •  ARROWS+ENTER: Edit  •  D: Double  •  [ ]: Volume  •  C: Clear  •  S/O: Save/Open",
	modeChords:    "SPACE: Start/Stop  •  ←/→: Key",
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	st := m.lab.Transport.Snapshot()

	// 1. Header
	var tabs []string
	for i := mode(0); i < numModes; i++ {
		if i == m.mode {
			tabs = append(tabs, activeTabStyle.Render(i.String()))
		} else {
			tabs = append(tabs, tabStyle.Render(i.String()))
		}
	}
	click := "on"
	if !st.ClickEnabled {
		click = "off"
	}
	info := fmt.Sprintf("%d BPM  %d/%d  click %s", st.BPM, st.TimeSignature.Numerator, st.TimeSignature.Denominator, click)
	header := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render("🎵 SONGBUDDY"), "   ", waveColor.Render(info)),
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
	)

	// 2. Body
	var body string
	switch m.mode {
	case modePiano:
		body = m.pianoView()
	case modeMetronome:
		body = m.metronomeView()
	case modeDrums:
		body = m.drumView()
	case modeChords:
		body = m.chordView()
	}

	// 3. Footer
	status := statusStyle.Render(m.status)
	help := helpStyle.Render(helps[m.mode] + "  •  TAB: Mode  •  +/-: Tempo  •  ESC: Quit")

	ui := lipgloss.JoinVertical(lipgloss.Center, header, m.visualizer(), body, status, help)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panelStyle.Render(ui))
}

func (m model) visualizer() string {
	var lines []string
	for r := 3; r >= -3; r-- {
		var line strings.Builder
		absR := math.Abs(float64(r))
		for _, val := range m.spectrum {
			h := val * 3.0
			switch {
			case r == 0 && h > 0.1:
				line.WriteString("█")
			case r == 0:
				line.WriteString("━")
			case h >= absR:
				line.WriteString("█")
			case h >= absR-0.5 && r > 0:
				line.WriteString("▄")
			case h >= absR-0.5:
				line.WriteString("▀")
			default:
				line.WriteString(" ")
			}
			line.WriteString(" ")
		}
		lines = append(lines, waveColor.Render(line.String()))
	}
	return visStyle.Render(strings.Join(lines, "\n"))
}

func (m model) pianoView() string {
	keys := []string{labelStyle.Render(fmt.Sprintf("\nOct %d", m.lab.Piano.Octave()))}
	for _, k := range pianoKeys {
		content := fmt.Sprintf("%s\n%s", k.Name, strings.ToUpper(k.Key))
		if _, ok := m.held[k.Key]; ok {
			keys = append(keys, activeKeyStyle.Render(content))
		} else {
			keys = append(keys, keyStyle.Render(content))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, keys...)
}

func (m model) metronomeView() string {
	perBar := m.lab.Transport.BeatsPerBar()
	boxes := make([]string, 0, perBar)
	for b := 1; b <= perBar; b++ {
		if m.running[modeMetronome] && b == m.beat {
			boxes = append(boxes, activeKeyStyle.Render(fmt.Sprint(b)))
		} else {
			boxes = append(boxes, keyStyle.Render(fmt.Sprint(b)))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m model) drumView() string {
	q := m.lab.Sequencer
	rows := q.Pattern().Rows()
	var lines []string
	for i, kind := range voice.Drums {
		cells := []string{labelStyle.Render(kind.String())}
		for s, on := range rows[i] {
			mark, style := "·", cellStyle
			if on != 0 {
				mark, style = "■", onCellStyle
			}
			switch {
			case m.cur == [2]int{i, s}:
				style = cursorStyle
			case q.Running() && s == m.step:
				style = nowCellStyle
			}
			cells = append(cells, style.Render(mark))
		}
		extra := fmt.Sprintf(" %3.0f%%", q.Volume(kind)*100)
		if q.Double(kind) {
			extra += " x2"
		}
		cells = append(cells, extra)
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) chordView() string {
	c := m.lab.Chords
	key := c.Key()
	prog := c.Progression()
	boxes := []string{labelStyle.Render("\n" + key)}
	for i, r := range prog {
		name := r
		if ch, err := theory.ChordByRoman(key, r); err == nil {
			name = ch.Name
		}
		content := fmt.Sprintf("%s\n%s", name, r)
		if m.running[modeChords] && len(prog) > 0 && i == m.bar%len(prog) {
			boxes = append(boxes, activeKeyStyle.Width(7).Render(content))
		} else {
			boxes = append(boxes, keyStyle.Width(7).Render(content))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}
