package outbox

import "github.com/roach88/partd/internal/types"

// ResolveSink maps the response sink of invocation id to the outbox message
// carrying result. The second result is false when there is no sink: the
// result of a background invocation is dropped.
func ResolveSink(id types.ServiceInvocationID, sink *types.ResponseSink, result types.ResponseResult) (types.OutboxMessage, bool) {
	if sink == nil {
		return types.OutboxMessage{}, false
	}
	switch sink.Kind {
	case types.SinkPartitionProcessor:
		return types.ForwardResponse(types.InvocationResponse{
			ID:         sink.Caller,
			EntryIndex: sink.EntryIndex,
			Result:     result,
		}), true
	case types.SinkIngress:
		return types.ForwardIngressResponse(types.IngressResponse{
			IngressID:           sink.Ingress,
			ServiceInvocationID: id,
			Response:            result,
		}), true
	default:
		return types.OutboxMessage{}, false
	}
}
