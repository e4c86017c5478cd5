// Package cluster answers ownership questions for the partition core: which
// partition a key belongs to, which node currently leads that partition, and
// whether the local node may apply commands for it.
//
// The real answers come from an external cluster controller. Registry is the
// in-process implementation used by a single node and by tests.
package cluster
