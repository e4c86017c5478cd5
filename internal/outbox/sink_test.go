package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/testutil"
	"github.com/roach88/partd/internal/types"
)

func TestResolveSink(t *testing.T) {
	id := types.NewServiceInvocationID("callee", []byte("k"), testutil.InvocationID(1))
	caller := types.NewServiceInvocationID("caller", []byte("c"), testutil.InvocationID(2))
	result := types.FailureResponse(3, "boom")

	msg, ok := ResolveSink(id, types.PartitionProcessorSink(caller, 4), result)
	require.True(t, ok)
	require.Equal(t, types.OutboxServiceResponse, msg.Kind)
	assert.True(t, msg.ServiceResponse.ID.Equal(caller))
	assert.Equal(t, types.EntryIndex(4), msg.ServiceResponse.EntryIndex)
	assert.Equal(t, result, msg.ServiceResponse.Result)

	msg, ok = ResolveSink(id, types.IngressSink("ingress-7"), result)
	require.True(t, ok)
	require.Equal(t, types.OutboxIngressResponse, msg.Kind)
	assert.Equal(t, types.IngressID("ingress-7"), msg.IngressResponse.IngressID)
	assert.True(t, msg.IngressResponse.ServiceInvocationID.Equal(id))

	_, ok = ResolveSink(id, nil, result)
	assert.False(t, ok)
}
