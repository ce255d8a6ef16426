package types

// StoreMetrics summarizes the contents of the ABI descriptor store.
type StoreMetrics struct {
	Descriptors uint32 `json:"descriptors"`
	Pinned      uint32 `json:"pinned"`
	// SizeBytes is the total encoded size of all stored descriptors.
	SizeBytes uint64 `json:"size_bytes"`
}
