package detection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/wake-listener/internal/recognition"
)

var t0 = time.Unix(1000, 0)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func defaults() Config {
	return Config{
		Phrases:         []string{"apollo"},
		ScoreThreshold:  0.1,
		MinConfidence:   0.1,
		MinWordDuration: 0.15,
		HighConfidence:  0.9,
		ConfirmCount:    1,
		Window:          2 * time.Second,
		Cooldown:        2 * time.Second,
	}
}

func score(v float32) recognition.Output {
	return recognition.Output{Kind: recognition.Score, Score: v}
}

func final(words ...recognition.WordSpan) recognition.Output {
	return recognition.Output{Kind: recognition.Final, Words: words}
}

func word(w string, conf, start, end float32) recognition.WordSpan {
	return recognition.WordSpan{Word: w, Confidence: conf, Start: start, End: end}
}

func TestScoreValidation(t *testing.T) {
	tests := []struct {
		name  string
		score float32
		want  bool
	}{
		{"below threshold", 0.05, false},
		{"at threshold", 0.1, false},
		{"above threshold", 0.11, true},
		{"nan", float32(math.NaN()), false},
		{"inf", float32(math.Inf(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(defaults())
			_, fired := m.Observe(t0, score(tt.score))
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestScoreRequiresMinConfidence(t *testing.T) {
	cfg := defaults()
	cfg.MinConfidence = 0.5
	m := New(cfg)

	_, fired := m.Observe(t0, score(0.3))
	assert.False(t, fired)
	assert.Empty(t, m.pending())
}

func TestPartialAndNoneIgnored(t *testing.T) {
	m := New(defaults())
	_, fired := m.Observe(t0, recognition.Output{Kind: recognition.Partial, Text: "apollo"})
	assert.False(t, fired)
	_, fired = m.Observe(t0, recognition.Output{Kind: recognition.None})
	assert.False(t, fired)
	assert.Empty(t, m.pending())
}

func TestWordValidation(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		word recognition.WordSpan
		want bool
	}{
		{"exact", word("apollo", 0.8, 1.0, 1.4), true},
		{"case and punctuation", word(" Apollo,", 0.8, 1.0, 1.4), true},
		{"different word", word("apollos", 0.8, 1.0, 1.4), false},
		{"low confidence", word("apollo", 0.05, 1.0, 1.4), false},
		{"too short", word("apollo", 0.8, 1.0, 1.1), false},
		{"missing confidence", word("apollo", nan, 1.0, 1.4), false},
		{"missing end", word("apollo", 0.8, 1.0, nan), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(defaults())
			d, fired := m.Observe(t0, final(word("ok", 1, 0, 0.5), tt.word))
			require.Equal(t, tt.want, fired)
			if fired {
				assert.Equal(t, "apollo", d.Phrase)
				assert.InDelta(t, 0.8, d.Confidence, 1e-6)
			}
		})
	}
}

func TestMultiWordPhrase(t *testing.T) {
	cfg := defaults()
	cfg.Phrases = []string{"Hey, Apollo"}
	m := New(cfg)

	_, fired := m.Observe(t0, final(word("hey", 0.9, 0, 0.2), word("there", 0.9, 0.2, 0.4), word("apollo", 0.9, 0.4, 0.8)))
	assert.False(t, fired, "words must be consecutive")

	d, fired := m.Observe(t0, final(word("hey", 0.95, 0, 0.1), word("apollo", 0.7, 0.1, 0.3)))
	require.True(t, fired, "duration spans the whole phrase")
	assert.Equal(t, "hey apollo", d.Phrase)
	assert.InDelta(t, 0.7, d.Confidence, 1e-6, "weakest word sets the confidence")
}

func TestConfirmationWindow(t *testing.T) {
	cfg := defaults()
	cfg.ConfirmCount = 3
	m := New(cfg)

	_, fired := m.Observe(at(0), score(0.5))
	assert.False(t, fired)
	_, fired = m.Observe(at(0.5), score(0.5))
	assert.False(t, fired)

	d, fired := m.Observe(at(1.0), score(0.6))
	require.True(t, fired)
	assert.Equal(t, 3, d.Confirmations)
	assert.False(t, d.Bypass)
	assert.Equal(t, at(1.0), d.Timestamp)
	assert.Empty(t, m.pending(), "firing clears the window")

	last, ok := m.lastFire()
	assert.True(t, ok)
	assert.Equal(t, at(1.0), last)
}

func TestWindowExpiry(t *testing.T) {
	cfg := defaults()
	cfg.ConfirmCount = 2
	m := New(cfg)

	_, fired := m.Observe(at(0), score(0.5))
	assert.False(t, fired)
	_, fired = m.Observe(at(3), score(0.5))
	assert.False(t, fired, "the first candidate left the window")

	window := m.pending()
	require.Len(t, window, 1)
	assert.Equal(t, at(3), window[0].Timestamp)
}

func TestCooldown(t *testing.T) {
	m := New(defaults())

	_, fired := m.Observe(at(0), score(0.5))
	require.True(t, fired)

	_, fired = m.Observe(at(1), score(0.5))
	assert.False(t, fired)
	_, fired = m.Observe(at(2), score(0.5))
	assert.False(t, fired, "exactly at the cooldown boundary is still cooling down")

	_, fired = m.Observe(at(2.5), score(0.5))
	assert.True(t, fired)
}

func TestBypass(t *testing.T) {
	cfg := defaults()
	cfg.ConfirmCount = 3
	m := New(cfg)

	d, fired := m.Observe(t0, score(0.9))
	require.True(t, fired, "high confidence skips confirmation")
	assert.True(t, d.Bypass)
	assert.Equal(t, 1, d.Confirmations)

	_, fired = m.Observe(at(1), score(0.99))
	assert.False(t, fired, "bypass does not skip the cooldown")
}

func TestOneDetectionPerObserve(t *testing.T) {
	m := New(defaults())

	d, fired := m.Observe(t0, final(word("apollo", 0.6, 0, 0.5), word("apollo", 0.8, 0.5, 1.0)))
	require.True(t, fired)
	assert.InDelta(t, 0.8, d.Confidence, 1e-6, "best match wins")
	assert.Empty(t, m.pending())
}

func TestCheckIsIdempotent(t *testing.T) {
	cfg := defaults()
	cfg.ConfirmCount = 2
	m := New(cfg)

	_, _ = m.Observe(at(0), score(0.5))
	assert.False(t, m.Check(at(0.5)))
	assert.False(t, m.Check(at(0.5)))
	assert.Len(t, m.pending(), 1)

	assert.False(t, m.Check(at(3)))
	assert.Empty(t, m.pending())
	assert.False(t, m.Check(at(3)))
	assert.Empty(t, m.pending())
}

func TestCandidatesCollectedDuringCooldown(t *testing.T) {
	cfg := defaults()
	cfg.ConfirmCount = 2
	m := New(cfg)

	_, fired := m.Observe(at(0), score(0.95))
	require.True(t, fired)

	_, fired = m.Observe(at(0.5), score(0.5))
	assert.False(t, fired)
	_, fired = m.Observe(at(1.0), score(0.5))
	assert.False(t, fired)

	assert.False(t, m.Check(at(1.5)), "still cooling down")
	assert.True(t, m.Check(at(2.1)))
}

func TestReset(t *testing.T) {
	m := New(defaults())
	_, fired := m.Observe(t0, score(0.5))
	require.True(t, fired)

	m.reset()
	_, ok := m.lastFire()
	assert.False(t, ok)

	_, fired = m.Observe(at(0.5), score(0.5))
	assert.True(t, fired)
}

func TestConfirmCountFloor(t *testing.T) {
	cfg := defaults()
	cfg.ConfirmCount = 0
	m := New(cfg)

	_, fired := m.Observe(t0, score(0.5))
	assert.True(t, fired)
}
