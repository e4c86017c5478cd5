// Package types provides the core data model of the partition processor.
//
// This package contains type definitions and pure functions only. All other
// internal packages import types; types imports nothing internal. This keeps
// the data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Identifiers are immutable once created
//   - Closed sets of shapes (InvocationStatus, OutboxMessage, CompletionResult,
//     ResponseSink) are tagged variants: a Kind field plus one payload per kind
//   - Journal entries and inbox entries are addressed by index, never by pointer
//   - PartitionKeyOf is stable forever for a given algorithm version
package types
