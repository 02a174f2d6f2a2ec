package logging

// LogEntry represents a structured log record with fields relevant to
// evaluation jobs and provider calls.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Pipeline-specific fields
	ModelID   string     // Embedding/judge model in use
	TokenInfo *TokenInfo // Token usage for the operation
	Latency   int64      // Operation duration in milliseconds
	Cost      float64    // Estimated operation cost in dollars

	// General structured data
	Fields map[string]interface{}
}

// TokenInfo tracks token usage for cost and performance monitoring.
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
