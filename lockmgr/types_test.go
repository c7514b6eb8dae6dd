package lockmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockStateText(t *testing.T) {
	for _, s := range []LockState{StateHeld, StateWaiting} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got LockState
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}

	var s LockState
	assert.Error(t, s.UnmarshalText([]byte("locked")))
	assert.Equal(t, "LockState(7)", LockState(7).String())
}

func TestCycleString(t *testing.T) {
	assert.Equal(t, "A->B->C->A", Cycle{Nodes: []string{"A", "B", "C"}}.String())
	assert.Empty(t, Cycle{}.String())
}

func TestSnapshotString(t *testing.T) {
	tbl := newLockTable()
	for _, op := range [][2]string{{"n2", "r2"}, {"n1", "r1"}, {"n2", "r1"}} {
		_, err := tbl.acquire(op[0], op[1])
		require.NoError(t, err)
	}

	want := "node to locks:[\n" +
		"(n1, 1, [(node=n1, resource=r1, state=held),])\n" +
		"(n2, 1, [(node=n2, resource=r2, state=held),(node=n2, resource=r1, state=waiting),])\n" +
		"]\nresource to locks:[\n" +
		"(r1, [(node=n1, resource=r1, state=held),(node=n2, resource=r1, state=waiting),])\n" +
		"(r2, [(node=n2, resource=r2, state=held),])\n" +
		"]\ngraph:[\n" +
		"n2:[n1,]\n" +
		"]\nnode set:[n1, n2]\n"
	assert.Equal(t, want, tbl.snapshot().String())
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()
	assert.Equal(t, DefaultDetectInterval, cfg.DetectInterval)
	assert.Equal(t, DefaultDetectInterval, DefaultConfig().DetectInterval)

	admin := &AdminConfig{}
	admin.setDefaults()
	assert.Equal(t, 1.0, admin.DetectRate)
	assert.Equal(t, 1, admin.DetectBurst)
}
