package types

// Version constants for the data model and runtime.
const (
	// ModelVersion is the persisted data model version.
	ModelVersion = "1"

	// RuntimeVersion is the partd runtime version.
	RuntimeVersion = "0.1.0"
)
