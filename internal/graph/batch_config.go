package graph

// BatchConfig defines UNWIND batch sizes per node label. Changes carry long
// text, so they use smaller batches than the short-property labels.
type BatchConfig struct {
	PatchBatchSize   int
	SectionBatchSize int
	ChangeBatchSize  int
	AgentBatchSize   int
	EdgeBatchSize    int
}

// DefaultBatchConfig returns the batch sizes used by every store
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		PatchBatchSize:   100,
		SectionBatchSize: 500,
		ChangeBatchSize:  500,
		AgentBatchSize:   200,
		EdgeBatchSize:    5000,
	}
}

// GetBatchSizeForLabel returns the batch size for a node label
func (bc BatchConfig) GetBatchSizeForLabel(label Label) int {
	switch label {
	case LabelPatch:
		return bc.PatchBatchSize
	case LabelSection:
		return bc.SectionBatchSize
	case LabelChange:
		return bc.ChangeBatchSize
	case LabelAgent:
		return bc.AgentBatchSize
	default:
		return 500
	}
}

// chunk splits n items into [start, end) windows of at most size
func chunk(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var windows [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		windows = append(windows, [2]int{start, end})
	}
	return windows
}
