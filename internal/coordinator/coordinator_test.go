package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithGlobalSlotRunsFn(t *testing.T) {
	c, err := New(t.TempDir(), 1)
	require.NoError(t, err)

	ran := false
	err = c.WithGlobalSlot(context.Background(), "lint", "lang", false, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	live, err := c.ActiveSlots()
	require.NoError(t, err)
	assert.Equal(t, 0, live, "slot must be released after fn returns")
}

func TestSkipSlotBypassesTracking(t *testing.T) {
	c, err := New(t.TempDir(), 1)
	require.NoError(t, err)

	ran := false
	err = c.WithGlobalSlot(context.Background(), "lint", "lang", true, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestCapacityBlocksSecondSlot(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1)
	require.NoError(t, err)

	// Simulate another live process holding the only slot by writing a
	// slot file owned by this test process's own pid (guaranteed alive).
	rec := slotRecord{PID: os.Getpid(), HookName: "lint", PluginName: "lang", AcquiredAt: time.Now()}
	require.NoError(t, c.writeSlotFile(0, rec))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = c.WithGlobalSlot(ctx, "lint", "lang", false, func(ctx context.Context) error {
		t.Fatal("fn should not run while pool is at capacity")
		return nil
	})
	assert.Error(t, err)
}

func TestDeadOwnerSweptOnAcquire(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1)
	require.NoError(t, err)

	// A pid that almost certainly does not exist.
	rec := slotRecord{PID: 999999, HookName: "lint", PluginName: "lang", AcquiredAt: time.Now()}
	require.NoError(t, c.writeSlotFile(0, rec))

	ran := false
	err = c.WithGlobalSlot(context.Background(), "lint", "lang", false, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSignalFailureRoundTrips(t *testing.T) {
	c, err := New(t.TempDir(), 1)
	require.NoError(t, err)

	sig, err := c.CheckFailureSignal()
	require.NoError(t, err)
	assert.Nil(t, sig)

	require.NoError(t, c.SignalFailure(FailureSignal{PluginName: "lang", HookName: "lint", Directory: "a"}))

	sig, err = c.CheckFailureSignal()
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "lang", sig.PluginName)
	assert.Equal(t, "lint", sig.HookName)
	assert.Equal(t, "a", sig.Directory)
	assert.Equal(t, os.Getpid(), sig.PID)

	require.NoError(t, c.ClearFailureSignal())
	sig, err = c.CheckFailureSignal()
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestClearFailureSignalMissingIsNotError(t *testing.T) {
	c, err := New(t.TempDir(), 1)
	require.NoError(t, err)
	assert.NoError(t, c.ClearFailureSignal())
}

func TestWriteAtomicProducesNoPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeAtomic(path, []byte(`{"a":1}`)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestParseSlotID(t *testing.T) {
	id, ok := parseSlotID("slot-7")
	require.True(t, ok)
	assert.Equal(t, 7, id)

	_, ok = parseSlotID("coordinator.lock")
	assert.False(t, ok)

	_, ok = parseSlotID("slot-x")
	assert.False(t, ok)
}

func TestPidAliveSelf(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(999999))
}

func TestParseSlotIDRoundTrip(t *testing.T) {
	for i := 0; i < 3; i++ {
		name := "slot-" + strconv.Itoa(i)
		id, ok := parseSlotID(name)
		require.True(t, ok)
		assert.Equal(t, i, id)
	}
}
