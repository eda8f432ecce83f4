package genaistream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator_AppendPublishes(t *testing.T) {
	var rec recorder
	a := NewAccumulator(rec.observe, nil)

	assert.Equal(t, "Hello", a.Append("Hello"))
	assert.Equal(t, "Hello world", a.Append(" world"))

	assert.Equal(t, "Hello world", a.Text())
	assert.Equal(t, len("Hello world"), a.Len())
	assert.Equal(t, 2, a.Fragments())
	assert.Equal(t, []string{"Hello", "Hello world"}, rec.all())
}

func TestAccumulator_Subscribe(t *testing.T) {
	a := NewAccumulator()
	a.Append("a")

	var rec recorder
	a.Subscribe(rec.observe)
	a.Subscribe(nil)
	a.Append("b")

	assert.Equal(t, []string{"ab"}, rec.all(), "late subscribers see only later changes")
}

func TestAccumulator_ObserverMayReadBack(t *testing.T) {
	a := NewAccumulator()
	var seen []int
	a.Subscribe(func(text string) {
		seen = append(seen, a.Len())
		assert.Equal(t, text, a.Text())
	})

	a.Append("xy")
	a.Append("z")
	assert.Equal(t, []int{2, 3}, seen)
}

func TestAccumulator_Reset(t *testing.T) {
	var rec recorder
	a := NewAccumulator(rec.observe)
	a.Append("old")
	a.Reset()

	assert.Empty(t, a.Text())
	assert.Equal(t, 0, a.Fragments())
	assert.Equal(t, []string{"old", ""}, rec.all())
}

func TestAccumulator_ConcurrentReaders(t *testing.T) {
	a := NewAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = a.Text()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		a.Append("x")
	}
	wg.Wait()

	assert.Equal(t, 100, a.Len())
}
