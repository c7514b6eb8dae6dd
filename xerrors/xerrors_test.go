package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"), "nil 错误应返回 nil")

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	require.Error(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.True(t, Is(wrapped, base), "应保留错误链")
}

func TestWrapf(t *testing.T) {
	assert.Nil(t, Wrapf(nil, "node %s", "n1"))

	wrapped := Wrapf(ErrNotFound, "node %s", "n1")
	assert.Equal(t, "node n1: not found", wrapped.Error())
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestWithCode(t *testing.T) {
	assert.Nil(t, WithCode(nil, "CODE"))

	coded := WithCode(ErrConflict, "DUPLICATE_LOCK")
	assert.Equal(t, "[DUPLICATE_LOCK] conflict", coded.Error())
	assert.Equal(t, "DUPLICATE_LOCK", GetCode(coded))
	assert.Equal(t, "DUPLICATE_LOCK", GetCode(Wrap(coded, "outer")), "外层包装后仍能提取错误码")
	assert.Empty(t, GetCode(ErrConflict))
	assert.True(t, Is(coded, ErrConflict))
}

func TestClasses(t *testing.T) {
	classes := []error{ErrNotFound, ErrInvalidInput, ErrConflict, ErrUnavailable}
	for i, a := range classes {
		for j, b := range classes {
			assert.Equal(t, i == j, Is(Wrap(a, "x"), b), "%v vs %v", a, b)
		}
	}
}

func TestMust(t *testing.T) {
	assert.Equal(t, 42, Must(42, nil))
	assert.Panics(t, func() { Must(0, errors.New("boom")) })
}

func TestCollector(t *testing.T) {
	var c Collector
	assert.NoError(t, c.Err())

	first := errors.New("first")
	c.Collect(nil)
	c.Collect(first)
	c.Collect(errors.New("second"))
	assert.Equal(t, first, c.Err(), "只保留第一个错误")
}

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine(nil, nil))

	single := errors.New("single")
	assert.Equal(t, single, Combine(nil, single))

	a, b := errors.New("a"), errors.New("b")
	combined := Combine(a, nil, b)
	var multi *MultiError
	require.True(t, As(combined, &multi))
	assert.Len(t, multi.Errors, 2)
	assert.Equal(t, "a (and 1 more errors)", combined.Error())
	assert.True(t, Is(combined, a))
	assert.True(t, Is(combined, b))
}
