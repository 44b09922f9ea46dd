package loaderreg

import (
	"runtime"
	"testing"
	"time"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainLoader struct{ name string }

func (p plainLoader) LoaderName() string { return p.name }

func TestGetOrCreateReturnsSameEntryAndCreatedFlag(t *testing.T) {
	reg := New(nil)
	l := plainLoader{"L"}

	e1, created1 := reg.GetOrCreate(l)
	require.True(t, created1)
	e2, created2 := reg.GetOrCreate(l)
	require.False(t, created2)
	assert.Same(t, e1, e2)
}

func TestDropRemovesEntryAndFiresOnReclaimed(t *testing.T) {
	var reclaimed runtimeiface.Loader
	reg := New(func(l runtimeiface.Loader) { reclaimed = l })
	l := plainLoader{"L"}

	reg.GetOrCreate(l)
	assert.False(t, reg.IsReclaimed(l))

	reg.Drop(l)
	assert.True(t, reg.IsReclaimed(l))
	assert.Equal(t, l, reclaimed)
}

func TestDropUnknownLoaderDoesNotFire(t *testing.T) {
	called := false
	reg := New(func(l runtimeiface.Loader) { called = true })
	reg.Drop(plainLoader{"never-registered"})
	assert.False(t, called)
}

func TestRangeVisitsInStableInsertionOrder(t *testing.T) {
	reg := New(nil)
	a, b, c := plainLoader{"a"}, plainLoader{"b"}, plainLoader{"c"}
	reg.GetOrCreate(a)
	reg.GetOrCreate(b)
	reg.GetOrCreate(c)

	var seen []string
	reg.Range(func(e *Entry) bool {
		seen = append(seen, e.Loader.LoaderName())
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRangeSkipsDroppedEntries(t *testing.T) {
	reg := New(nil)
	a, b := plainLoader{"a"}, plainLoader{"b"}
	reg.GetOrCreate(a)
	reg.GetOrCreate(b)
	reg.Drop(a)

	var seen []string
	reg.Range(func(e *Entry) bool {
		seen = append(seen, e.Loader.LoaderName())
		return true
	})
	assert.Equal(t, []string{"b"}, seen)
}

func TestTrackFiresReclaimedOnceHostLoaderIsUnreachable(t *testing.T) {
	done := make(chan runtimeiface.Loader, 1)
	reg := New(func(l runtimeiface.Loader) { done <- l })

	func() {
		hostLoader := new(struct{ id int })
		handle := Track(reg, hostLoader, "host-loader")
		_, created := reg.GetOrCreate(handle)
		require.False(t, created, "Track should already have registered its handle")
		assert.False(t, reg.IsReclaimed(handle))
		runtime.KeepAlive(hostLoader)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		select {
		case <-done:
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("loader was never reported reclaimed after becoming unreachable")
}
