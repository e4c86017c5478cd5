package cluster

import (
	"context"

	"github.com/roach88/partd/internal/types"
)

// Metadata describes the local node. It is carried in the context of
// long-running components instead of being passed to every constructor.
type Metadata struct {
	NodeName    string
	ClusterName string
	PeerID      types.PeerID
}

type metadataKey struct{}

// WithMetadata returns a context carrying md.
func WithMetadata(ctx context.Context, md Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, md)
}

// MetadataFrom returns the metadata carried by ctx. The second result is
// false if none was attached.
func MetadataFrom(ctx context.Context) (Metadata, bool) {
	md, ok := ctx.Value(metadataKey{}).(Metadata)
	return md, ok
}
