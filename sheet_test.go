package latis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock is a Clock stub that lets tests assert on edited_time
// deterministically.
type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestSetArithmeticChain(t *testing.T) {
	s := NewSheet()
	_, err := s.Set(xy(0, 0), "2")
	require.NoError(t, err)
	_, err = s.Set(xy(1, 0), "2")
	require.NoError(t, err)
	v, err := s.Set(xy(2, 0), "A1+B1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.Int)
}

func TestSetFanOutFiresOnChangeOncePerDescendant(t *testing.T) {
	s := NewSheet()
	_, _ = s.Set(xy(0, 0), "2")
	_, _ = s.Set(xy(1, 0), "2")
	_, _ = s.Set(xy(2, 0), "A1+B1")

	var changed []XY
	s.RegisterOnChange(func(xy XY, cell Cell) { changed = append(changed, xy) })

	_, err := s.Set(xy(1, 0), "3")
	require.NoError(t, err)

	assert.Equal(t, []XY{xy(2, 0)}, changed)
	v, err := s.Get(xy(2, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int)
}

func TestSetNoFanOutBeforeDependencyEstablished(t *testing.T) {
	s := NewSheet()
	_, _ = s.Set(xy(2, 0), "A1")

	var changed []XY
	s.RegisterOnChange(func(xy XY, cell Cell) { changed = append(changed, xy) })

	_, _ = s.Set(xy(1, 0), "4")
	assert.Empty(t, changed)

	_, _ = s.Set(xy(0, 0), "1")
	assert.Equal(t, []XY{xy(2, 0)}, changed)

	v, err := s.Get(xy(2, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int)
}

func TestSetRejectsCycle(t *testing.T) {
	s := NewSheet()
	_, err := s.Set(xy(0, 0), "1")
	require.NoError(t, err)
	_, err = s.Set(xy(1, 0), "A1")
	require.NoError(t, err)
	_, err = s.Set(xy(0, 0), "B1")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, CycleError, kind)

	// Neither cell's prior value is disturbed.
	v, err := s.Get(xy(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int)
	v, err = s.Get(xy(1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int)
}

func TestSetRejectedCycleLeavesGraphUsable(t *testing.T) {
	s := NewSheet()
	_, _ = s.Set(xy(0, 0), "1")
	_, _ = s.Set(xy(1, 0), "A1")
	_, err := s.Set(xy(0, 0), "B1")
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, CycleError, kind)

	// The graph is still usable after a rejected cycle: a fresh,
	// non-cyclic edge still succeeds.
	_, err = s.Set(xy(2, 0), "B1")
	require.NoError(t, err)
	v, err := s.Get(xy(2, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int)
}

func TestGetNotFound(t *testing.T) {
	s := NewSheet()
	_, err := s.Get(xy(0, 0))
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, NotFound, kind)
}

func TestClearRecomputesDescendantsWithError(t *testing.T) {
	s := NewSheet()
	_, _ = s.Set(xy(0, 0), "1")
	_, _ = s.Set(xy(1, 0), "A1")

	var changed []XY
	s.RegisterOnChange(func(xy XY, cell Cell) { changed = append(changed, xy) })

	err := s.Clear(xy(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []XY{xy(1, 0)}, changed)

	_, err = s.Get(xy(1, 0))
	assert.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, EvalError, kind)
}

func TestEditedTimeAdvancesOnSet(t *testing.T) {
	clock := &mutableClock{t: time.Unix(1000, 0)}
	s := NewSheet(WithClock(clock))
	created := s.CreatedTime()

	clock.t = time.Unix(2000, 0)
	_, err := s.Set(xy(0, 0), "1")
	require.NoError(t, err)

	assert.Equal(t, created, s.CreatedTime())
	assert.Equal(t, clock.t, s.EditedTime())
}

type mutableClock struct{ t time.Time }

func (m *mutableClock) Now() time.Time { return m.t }

func TestReentrantCallbackRejected(t *testing.T) {
	s := NewSheet()
	_, _ = s.Set(xy(0, 0), "1")
	_, _ = s.Set(xy(1, 0), "A1")

	var reentrantErr error
	s.RegisterOnChange(func(xy XY, cell Cell) {
		_, reentrantErr = s.Set(xy, "2")
	})

	_, err := s.Set(xy(0, 0), "5")
	require.NoError(t, err)
	assert.ErrorIs(t, reentrantErr, ErrReentrant)
}

func TestWidthAndHeight(t *testing.T) {
	s := NewSheet()
	_, _ = s.Set(xy(2, 3), "1")
	assert.Equal(t, 4, s.Height())
	assert.Equal(t, 3, s.Width())
}

func TestLoadReplaysFormulas(t *testing.T) {
	records := []CellRecord{
		{XY: xy(0, 0), Text: "2"},
		{XY: xy(1, 0), Text: "3"},
		{XY: xy(2, 0), Text: "A1+B1"},
	}
	s, err := Load(records)
	require.NoError(t, err)
	v, err := s.Get(xy(2, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int)
}
