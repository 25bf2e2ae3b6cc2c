package index

// Strategy names a search path through the index.
type Strategy string

const (
	// StrategyExact is a full int8 cosine scan.
	StrategyExact Strategy = "exact"
	// StrategyBinaryRescore prefilters by Hamming distance on binary codes,
	// then rescores the surviving candidates with int8 cosine.
	StrategyBinaryRescore Strategy = "binary_rescore"
	// StrategyHNSW uses the approximate graph index.
	StrategyHNSW Strategy = "hnsw"
)

// Corpus-size cutoffs for automatic strategy selection.
const (
	exactScanCeiling     = 500
	binaryRescoreCeiling = 1000
)

// DetermineStrategy picks a search path from live corpus size and index
// availability. An explicit override always wins. Above the binary-rescore
// ceiling the graph index is preferred, degrading silently to binary rescore
// when it has not been built.
func DetermineStrategy(corpusSize int, override Strategy, hnswReady bool) Strategy {
	if override != "" {
		return override
	}
	switch {
	case corpusSize < exactScanCeiling:
		return StrategyExact
	case corpusSize < binaryRescoreCeiling:
		return StrategyBinaryRescore
	case hnswReady:
		return StrategyHNSW
	default:
		return StrategyBinaryRescore
	}
}
