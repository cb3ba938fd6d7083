package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type expiry struct {
	room, user, name string
}

type recorder struct {
	mu     sync.Mutex
	events []expiry
}

func (r *recorder) record(room, user, name string) {
	r.mu.Lock()
	r.events = append(r.events, expiry{room, user, name})
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestTracker_StartStop(t *testing.T) {
	tr := NewTracker(WithTimeout(time.Hour))
	defer tr.Close()

	assert.True(t, tr.Start("1", "u2", "bob"))
	assert.True(t, tr.Start("1", "u1", "alice"))
	assert.False(t, tr.Start("1", "u1", "alice"), "restart reports already typing")
	assert.Equal(t, []string{"u1", "u2"}, tr.Current("1"))
	assert.Empty(t, tr.Current("2"))

	assert.True(t, tr.Stop("1", "u1"))
	assert.False(t, tr.Stop("1", "u1"))
	assert.Equal(t, []string{"u2"}, tr.Current("1"))
}

func TestTracker_Expires(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(WithTimeout(20*time.Millisecond), WithOnExpire(rec.record))
	defer tr.Close()

	tr.Start("1", "u1", "alice")

	assert.Eventually(t, func() bool { return len(tr.Current("1")) == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, expiry{"1", "u1", "alice"}, rec.events[0])
}

func TestTracker_RestartResetsWindow(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(WithTimeout(150*time.Millisecond), WithOnExpire(rec.record))
	defer tr.Close()

	tr.Start("1", "u1", "alice")
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		tr.Start("1", "u1", "alice")
	}
	assert.Equal(t, []string{"u1"}, tr.Current("1"), "refreshes keep the indicator alive")
	assert.Equal(t, 0, rec.count())

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "timers do not stack")
}

func TestTracker_StopCancelsExpiry(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(WithTimeout(20*time.Millisecond), WithOnExpire(rec.record))
	defer tr.Close()

	tr.Start("1", "u1", "alice")
	tr.Stop("1", "u1")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestTracker_Close(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(WithTimeout(20*time.Millisecond), WithOnExpire(rec.record))

	tr.Start("1", "u1", "alice")
	tr.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Empty(t, tr.Current("1"))
}
