package network

import (
	"fmt"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

// Envelope is one outbox message in flight.
type Envelope struct {
	From    types.ProducerID    `cbor:"1,keyasint"`
	Index   types.MessageIndex  `cbor:"2,keyasint"`
	Message types.OutboxMessage `cbor:"3,keyasint"`
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s#%d %s", e.From, e.Index, e.Message.Kind)
}

// Encode serializes the envelope.
func (e Envelope) Encode() ([]byte, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e, err)
	}
	return data, nil
}

// DecodeEnvelope parses an envelope produced by Encode.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := codec.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// checkAck verifies that ack answers env.
func checkAck(env Envelope, ack types.AckKind) error {
	if ack.Kind != types.Acknowledge && ack.Kind != types.Duplicate {
		return fmt.Errorf("envelope %s: invalid ack %s", env, ack)
	}
	if ack.Index != env.Index {
		return fmt.Errorf("envelope %s: ack for index %d", env, ack.Index)
	}
	return nil
}
