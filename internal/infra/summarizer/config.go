package summarizer

const (
	// defaultMaxTokens budgets roughly 150 tokens per article in a batch
	// of ten plus headroom.
	defaultMaxTokens = 2048

	minMaxTokens = 256
	maxMaxTokens = 8192
)
