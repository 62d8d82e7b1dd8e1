package scores

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore(3)
	assert.Equal(t, Stats{}, s.Stats())
	assert.Empty(t, s.Values())
}

func TestStoreRollsOver(t *testing.T) {
	s := NewStore(3)
	for _, v := range []float32{0.1, 0.2, 0.3, 0.4, 0.5} {
		s.Add(v)
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float32{0.3, 0.4, 0.5}, s.Values())

	st := s.Stats()
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 0.4, st.Average, 1e-6)
	assert.InDelta(t, 0.5, st.Maximum, 1e-6)
}

func TestStoreIgnoresNonFinite(t *testing.T) {
	s := NewStore(4)
	s.Add(float32(math.NaN()))
	s.Add(float32(math.Inf(1)))
	s.Add(0.6)

	assert.Equal(t, []float32{0.6}, s.Values())
}

func TestStoreDefaultSize(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < 250; i++ {
		s.Add(float32(i) / 250)
	}
	assert.Equal(t, DefaultSize, s.Len())
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore(100)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Add(0.5)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			st := s.Stats()
			if st.Count > 0 {
				assert.InDelta(t, 0.5, st.Average, 1e-6)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 100, s.Stats().Count)
}
