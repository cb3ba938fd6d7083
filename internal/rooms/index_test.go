package rooms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeMember struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeMember) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestIndex_JoinLeave(t *testing.T) {
	x := NewIndex()
	a, b := &fakeMember{id: "A"}, &fakeMember{id: "B"}

	x.Join("1", a)
	assert.Equal(t, []string{"A"}, x.Members("1"))

	x.Join("1", b)
	assert.Equal(t, []string{"A", "B"}, x.Members("1"))
	assert.True(t, x.Contains("1", "B"))

	assert.True(t, x.Leave("1", "B"))
	assert.False(t, x.Leave("1", "B"), "second leave is a no-op")
	assert.Equal(t, []string{"A"}, x.Members("1"))

	assert.True(t, x.Leave("1", "A"))
	assert.Empty(t, x.Members("1"))
	assert.Empty(t, x.Rooms(), "empty rooms are dropped")
}

func TestIndex_Broadcast(t *testing.T) {
	x := NewIndex()
	a, b, c := &fakeMember{id: "A"}, &fakeMember{id: "B"}, &fakeMember{id: "C"}
	x.Join("1", a)
	x.Join("1", b)
	x.Join("2", c)

	assert.Equal(t, 2, x.Broadcast("1", []byte("hi")))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, c.count(), "other rooms are not reached")

	assert.Equal(t, 1, x.Broadcast("1", []byte("typing"), "A"))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 2, b.count())

	b.closed = true
	assert.Equal(t, 1, x.Broadcast("1", []byte("x")))
	assert.Equal(t, 0, x.Broadcast("missing", []byte("x")))
}

func TestIndex_ConcurrentJoinLeave(t *testing.T) {
	x := NewIndex()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &fakeMember{id: fmt.Sprintf("c%d", i)}
			x.Join("1", m)
			x.Broadcast("1", []byte("x"))
			if i%2 == 0 {
				x.Leave("1", m.id)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, x.Members("1"), 50)
}
