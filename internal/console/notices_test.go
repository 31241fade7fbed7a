package console

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoticesRingEvictsOldest(t *testing.T) {
	n := NewNotices(3)
	for i := 1; i <= 5; i++ {
		n.Add(NoticeInfo, fmt.Sprintf("n%d", i))
	}

	list := n.List()
	require.Len(t, list, 3)
	assert.Equal(t, "n3", list[0].Message)
	assert.Equal(t, "n5", list[2].Message)
	assert.Equal(t, int64(5), list[2].Seq)

	assert.Len(t, n.Since(3), 2)
	assert.Empty(t, n.Since(5))
	assert.Len(t, n.Since(0), 3)
}

func TestNoticesPartialRing(t *testing.T) {
	n := NewNotices(0)
	assert.Empty(t, n.List())
	n.Add(NoticeError, "x")
	assert.Len(t, n.List(), 1)
}
