package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimistic_CommitsOnSuccess(t *testing.T) {
	items := []string{"a"}

	err := optimistic(
		func() int {
			items = append(items, "b")
			return len(items) - 1
		},
		func() error { return nil },
		func(mark int) { items = items[:mark] },
	)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, items)
}

func TestOptimistic_RollsBackOnFailure(t *testing.T) {
	items := []string{"a"}
	boom := errors.New("boom")

	err := optimistic(
		func() int {
			items = append(items, "b")
			return len(items) - 1
		},
		func() error { return boom },
		func(mark int) { items = items[:mark] },
	)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a"}, items)
}
