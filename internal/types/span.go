package types

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// TraceID identifies a distributed trace.
type TraceID [16]byte

// SpanID identifies a span within a trace.
type SpanID [8]byte

// SpanContext is an opaque causality token threaded through invocations and
// journal entries for an external tracing exporter. The core never branches
// on its contents.
type SpanContext struct {
	TraceID TraceID `cbor:"1,keyasint"`
	SpanID  SpanID  `cbor:"2,keyasint"`
	Sampled bool    `cbor:"3,keyasint,omitempty"`
	// Links holds causing spans that are not parents.
	Links []SpanContext `cbor:"4,keyasint,omitempty"`
}

// EmptySpanContext returns the span context of an untraced invocation.
func EmptySpanContext() SpanContext {
	return SpanContext{}
}

// IsValid reports whether the context carries a trace.
func (s SpanContext) IsValid() bool {
	return s.TraceID != TraceID{} && s.SpanID != SpanID{}
}

// TraceIDString returns the hex trace id, used as a log attribute.
func (s SpanContext) TraceIDString() string {
	return hex.EncodeToString(s.TraceID[:])
}

// SpanIDString returns the hex span id.
func (s SpanContext) SpanIDString() string {
	return hex.EncodeToString(s.SpanID[:])
}

// SpanRelationKind distinguishes how a new span relates to an existing one.
type SpanRelationKind int

const (
	// SpanRelationNone starts a new root trace.
	SpanRelationNone SpanRelationKind = iota
	// SpanRelationParent starts a child span in the parent's trace.
	SpanRelationParent
	// SpanRelationCausedBy starts a new trace linked to the causing span.
	SpanRelationCausedBy
)

// SpanRelation is used to propagate tracing contexts across invocation
// boundaries.
type SpanRelation struct {
	Kind    SpanRelationKind
	Related SpanContext
}

// AsParent returns a relation making s the parent of the next span.
func (s SpanContext) AsParent() SpanRelation {
	return SpanRelation{Kind: SpanRelationParent, Related: s}
}

// AsCause returns a relation linking the next span to s.
func (s SpanContext) AsCause() SpanRelation {
	return SpanRelation{Kind: SpanRelationCausedBy, Related: s}
}

// StartSpan derives the span context of a new invocation from a relation.
func StartSpan(rel SpanRelation) SpanContext {
	span := SpanContext{SpanID: newSpanID(), Sampled: rel.Related.Sampled}
	if !rel.Related.IsValid() {
		rel.Kind = SpanRelationNone
	}
	switch rel.Kind {
	case SpanRelationParent:
		span.TraceID = rel.Related.TraceID
	case SpanRelationCausedBy:
		span.TraceID = newTraceID()
		span.Links = []SpanContext{{TraceID: rel.Related.TraceID, SpanID: rel.Related.SpanID}}
	default:
		span.TraceID = newTraceID()
	}
	return span
}

func newTraceID() TraceID {
	return TraceID(uuid.New())
}

func newSpanID() SpanID {
	var id SpanID
	u := uuid.New()
	copy(id[:], u[:8])
	return id
}
