package subscription

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SubscribeUnsubscribe(t *testing.T) {
	m := NewManager("B", "A")
	assert.Equal(t, []string{"A", "B"}, m.DesiredSet())

	added := m.Subscribe("C", "A", " ", "C")
	assert.Equal(t, []string{"C"}, added, "only new keys are reported")
	assert.Equal(t, []string{"A", "B", "C"}, m.DesiredSet())

	removed := m.Unsubscribe("A", "Z")
	assert.Equal(t, []string{"A"}, removed, "absent keys are not reported")
	assert.Equal(t, []string{"B", "C"}, m.DesiredSet())
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Contains("B"))
	assert.False(t, m.Contains("A"))
}

func TestManager_Idempotent(t *testing.T) {
	m := NewManager()
	require.Equal(t, []string{"X"}, m.Subscribe("X"))
	assert.Empty(t, m.Subscribe("X"))
	assert.Equal(t, []string{"X"}, m.DesiredSet())

	require.Equal(t, []string{"X"}, m.Unsubscribe("X"))
	assert.Empty(t, m.Unsubscribe("X"))
	assert.Empty(t, m.DesiredSet())
}

func TestManager_DesiredSetIsCopy(t *testing.T) {
	m := NewManager("A", "B")
	set := m.DesiredSet()
	set[0] = "mutated"
	assert.Equal(t, []string{"A", "B"}, m.DesiredSet())
}

// For any sequence of calls the desired set equals the net effect of the sequence.
func TestManager_NetEffectOfRandomSequences(t *testing.T) {
	universe := []string{"NSE_EQ|A", "NSE_EQ|B", "NSE_EQ|C", "BSE_EQ|D", "NSE_FO|E"}
	rng := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 200; run++ {
		m := NewManager()
		model := map[string]bool{}

		for step := 0; step < 30; step++ {
			n := rng.IntN(3) + 1
			keys := make([]string, n)
			for i := range keys {
				keys[i] = universe[rng.IntN(len(universe))]
			}
			if rng.IntN(2) == 0 {
				m.Subscribe(keys...)
				for _, k := range keys {
					model[k] = true
				}
			} else {
				m.Unsubscribe(keys...)
				for _, k := range keys {
					delete(model, k)
				}
			}
		}

		want := make([]string, 0, len(model))
		for k := range model {
			want = append(want, k)
		}
		sort.Strings(want)
		require.Equal(t, want, m.DesiredSet(), "run %d", run)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("K%d-%d", i, j)
				m.Subscribe(key)
				_ = m.DesiredSet()
				if j%2 == 0 {
					m.Unsubscribe(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8*50, m.Len())
}
