package pipeline

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemark/pagemark/internal/domain"
)

func TestAssembler_OrderedOutput(t *testing.T) {
	a := NewAssembler(3)
	require.NoError(t, a.Insert(0, "first"))
	require.NoError(t, a.Insert(1, "second"))
	require.NoError(t, a.Insert(2, "third"))

	out, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\nthird", out)
}

func TestAssembler_ArrivalOrderIrrelevant(t *testing.T) {
	const k = 12

	var want string
	for i := 0; i < k; i++ {
		if i > 0 {
			want += "\n\n"
		}
		want += fmt.Sprintf("fragment %d", i)
	}

	for trial := 0; trial < 5; trial++ {
		a := NewAssembler(k)
		order := rand.Perm(k)
		for _, seq := range order {
			require.NoError(t, a.Insert(seq, fmt.Sprintf("fragment %d", seq)))
		}

		out, err := a.Finalize()
		require.NoError(t, err)
		assert.Equal(t, want, out, "insertion order %v", order)
	}
}

func TestAssembler_FinalizeBeforeCompleteFails(t *testing.T) {
	a := NewAssembler(3)
	require.NoError(t, a.Insert(0, "only one"))

	_, err := a.Finalize()
	require.Error(t, err)
	assert.Equal(t, domain.ClassIncomplete, domain.ClassOf(err))
	assert.False(t, a.Complete())

	// Filling the rest makes finalize succeed.
	require.NoError(t, a.Insert(1, "two"))
	require.NoError(t, a.Insert(2, "three"))
	assert.True(t, a.Complete())

	_, err = a.Finalize()
	assert.NoError(t, err)
}

func TestAssembler_DuplicateInsertFails(t *testing.T) {
	a := NewAssembler(2)
	require.NoError(t, a.Insert(0, "x"))
	assert.Error(t, a.Insert(0, "x again"))
}

func TestAssembler_OutOfRangeInsertFails(t *testing.T) {
	a := NewAssembler(2)
	assert.Error(t, a.Insert(-1, "below"))
	assert.Error(t, a.Insert(2, "above"))
}
