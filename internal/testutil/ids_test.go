package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvocationID_Stable(t *testing.T) {
	assert.Equal(t, InvocationID(7), InvocationID(7))
	assert.NotEqual(t, InvocationID(7), InvocationID(8))
	assert.Equal(t, 7, int(InvocationID(7).Version()))
}

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs()
	assert.Equal(t, InvocationID(1), gen.Next())
	assert.Equal(t, InvocationID(2), gen.Next())

	gen.Reset()
	assert.Equal(t, InvocationID(1), gen.Next())
}
