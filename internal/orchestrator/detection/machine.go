// Package detection turns recognition outputs into wake detections: validation, a confirmation
// window, a cooldown gate and a high-confidence bypass.
package detection

import (
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/GriffinCanCode/wake-listener/internal/recognition"
)

// Config for the state machine. Durations are wall-clock.
type Config struct {
	Phrases         []string
	ScoreThreshold  float64
	MinConfidence   float64
	MinWordDuration float64 // seconds
	HighConfidence  float64
	ConfirmCount    int
	Window          time.Duration
	Cooldown        time.Duration
}

// Candidate is a validated observation waiting in the confirmation window.
type Candidate struct {
	Timestamp  time.Time
	Confidence float64
	Phrase     string
}

// Detection is one fired wake event.
type Detection struct {
	Timestamp     time.Time
	Confidence    float64
	Phrase        string
	Confirmations int
	Bypass        bool
}

// Machine is the detection state machine.
type Machine struct {
	cfg     Config
	phrases [][]string

	mu       sync.Mutex
	window   []Candidate
	lastWake time.Time
	fired    bool
}

// New creates a machine. A confirmation count below one is treated as one.
func New(cfg Config) *Machine {
	if cfg.ConfirmCount < 1 {
		cfg.ConfirmCount = 1
	}
	m := &Machine{cfg: cfg}
	for _, p := range cfg.Phrases {
		var tokens []string
		for _, f := range strings.Fields(p) {
			if t := normalize(f); t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) > 0 {
			m.phrases = append(m.phrases, tokens)
		}
	}
	return m
}

// Observe feeds one engine output. It returns a detection when the output completes one.
func (m *Machine) Observe(now time.Time, out recognition.Output) (Detection, bool) {
	var (
		cand Candidate
		ok   bool
	)
	switch out.Kind {
	case recognition.Score:
		cand, ok = m.validateScore(out.Score)
	case recognition.Final:
		cand, ok = m.matchWords(out.Words)
	}
	if !ok {
		return Detection{}, false
	}
	cand.Timestamp = now

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune(now)
	m.window = append(m.window, cand)

	if m.inCooldown(now) {
		return Detection{}, false
	}
	if atLeast(cand.Confidence, m.cfg.HighConfidence) {
		return m.fire(now, cand, true), true
	}
	if len(m.window) >= m.cfg.ConfirmCount {
		return m.fire(now, cand, false), true
	}
	return Detection{}, false
}

// Check prunes the window and reports whether it would confirm now, without adding a candidate.
func (m *Machine) Check(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune(now)
	return !m.inCooldown(now) && len(m.window) >= m.cfg.ConfirmCount
}

// pending returns a copy of the confirmation window, oldest first.
func (m *Machine) pending() []Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Candidate(nil), m.window...)
}

// lastFire returns the time of the last detection and whether there has been one.
func (m *Machine) lastFire() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastWake, m.fired
}

// reset clears the window and the cooldown.
func (m *Machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = nil
	m.lastWake = time.Time{}
	m.fired = false
}

func (m *Machine) fire(now time.Time, cand Candidate, bypass bool) Detection {
	d := Detection{
		Timestamp:     now,
		Confidence:    cand.Confidence,
		Phrase:        cand.Phrase,
		Confirmations: len(m.window),
		Bypass:        bypass,
	}
	m.lastWake = now
	m.fired = true
	m.window = m.window[:0]
	return d
}

// inCooldown is true while now is at most Cooldown after the last detection.
func (m *Machine) inCooldown(now time.Time) bool {
	return m.fired && now.Sub(m.lastWake) <= m.cfg.Cooldown
}

func (m *Machine) prune(now time.Time) {
	keep := m.window[:0]
	for _, c := range m.window {
		if now.Sub(c.Timestamp) <= m.cfg.Window {
			keep = append(keep, c)
		}
	}
	m.window = keep
}

func (m *Machine) validateScore(score float32) (Candidate, bool) {
	s := float64(score)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return Candidate{}, false
	}
	if atLeast(m.cfg.ScoreThreshold, s) || !atLeast(s, m.cfg.MinConfidence) {
		return Candidate{}, false
	}
	return Candidate{Confidence: s}, true
}

// matchWords finds the best phrase occurrence among the words. A multi-word phrase must match
// consecutive spans; its confidence is the weakest word's and its duration spans first to last.
func (m *Machine) matchWords(words []recognition.WordSpan) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, phrase := range m.phrases {
		for i := 0; i+len(phrase) <= len(words); i++ {
			conf, ok := m.matchAt(words[i:i+len(phrase)], phrase)
			if ok && (!found || conf > best.Confidence) {
				best = Candidate{Confidence: conf, Phrase: strings.Join(phrase, " ")}
				found = true
			}
		}
	}
	return best, found
}

func (m *Machine) matchAt(span []recognition.WordSpan, phrase []string) (float64, bool) {
	conf := math.Inf(1)
	for j, w := range span {
		if !w.Valid() || normalize(w.Word) != phrase[j] {
			return 0, false
		}
		conf = math.Min(conf, float64(w.Confidence))
	}
	duration := float64(span[len(span)-1].End - span[0].Start)
	if !atLeast(conf, m.cfg.MinConfidence) || !atLeast(duration, m.cfg.MinWordDuration) {
		return 0, false
	}
	return conf, true
}

func normalize(s string) string {
	return strings.TrimFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// atLeast compares at float32 precision, the precision engines report in.
func atLeast(v, threshold float64) bool {
	return float32(v) >= float32(threshold)
}
