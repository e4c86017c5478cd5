package journal

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

const awakeablePrefix = "awk_"

type awakeableRef struct {
	ID    types.ServiceInvocationID `cbor:"1,keyasint"`
	Index types.EntryIndex          `cbor:"2,keyasint"`
}

// AwakeableID returns the external identifier of the awakeable entry at
// index. Whoever holds it can complete the entry with a CompleteAwakeable
// entry of its own.
func AwakeableID(id types.ServiceInvocationID, index types.EntryIndex) (string, error) {
	data, err := codec.Marshal(awakeableRef{ID: id, Index: index})
	if err != nil {
		return "", fmt.Errorf("encode awakeable id: %w", err)
	}
	return awakeablePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// ParseAwakeableID reverses AwakeableID.
func ParseAwakeableID(s string) (types.ServiceInvocationID, types.EntryIndex, error) {
	if !strings.HasPrefix(s, awakeablePrefix) {
		return types.ServiceInvocationID{}, 0, fmt.Errorf("invalid awakeable id %q: missing prefix", s)
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, awakeablePrefix))
	if err != nil {
		return types.ServiceInvocationID{}, 0, fmt.Errorf("invalid awakeable id %q: %w", s, err)
	}
	var ref awakeableRef
	if err := codec.Unmarshal(data, &ref); err != nil {
		return types.ServiceInvocationID{}, 0, fmt.Errorf("invalid awakeable id %q: %w", s, err)
	}
	return ref.ID, ref.Index, nil
}
