package partition

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/partd/internal/types"
)

func TestError_Predicates(t *testing.T) {
	id := cartInvocation(1, nil).ID
	cause := errors.New("disk full")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"invalid transition", NewInvalidStatusTransitionError(id, types.FreeStatus()), IsInvalidStatusTransition},
		{"unknown invocation", NewUnknownInvocationError(id), IsUnknownInvocation},
		{"key mismatch", NewPartitionKeyMismatchError(3, 7, types.KeyRange{Start: 10, End: 20}), IsPartitionKeyMismatch},
		{"not leader", NewNotLeaderError(3, "node-a"), IsPartitionKeyMismatch},
		{"invalid command", NewInvalidCommandError("invoke command missing invocation", nil), IsInvalidCommand},
		{"storage", NewStorageUnavailableError(cause), IsStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)), "predicates see through wrapping")
			assert.NotEmpty(t, tt.err.Error())
		})
	}

	assert.False(t, IsUnknownInvocation(cause))
	assert.False(t, IsUnknownInvocation(nil))
	assert.False(t, IsStorageUnavailable(NewInvalidCommandError("malformed journal entry", cause)))
	assert.True(t, errors.Is(NewStorageUnavailableError(cause), cause))
	assert.True(t, errors.Is(NewNotLeaderError(3, "node-a"), ErrNotLeader))
}

func TestError_MessageNamesInvocation(t *testing.T) {
	id := cartInvocation(1, nil).ID
	err := NewUnknownInvocationError(id)
	assert.Contains(t, err.Error(), string(ErrCodeUnknownInvocation))
	assert.Contains(t, err.Error(), id.String())
}
