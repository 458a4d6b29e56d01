package llm

// ChatMessage is a role/content pair submitted to the completion API
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamOptions requests extra streaming behavior from the API
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatCompletionRequest is the wire request for /chat/completions
type ChatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []ChatMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// Usage is the token accounting reported by the API. The cache hit and
// miss fields split the prompt tokens by prompt-cache outcome.
type Usage struct {
	PromptTokens          int `json:"prompt_tokens,omitempty"`
	CompletionTokens      int `json:"completion_tokens,omitempty"`
	TotalTokens           int `json:"total_tokens,omitempty"`
	PromptCacheHitTokens  int `json:"prompt_cache_hit_tokens,omitempty"`
	PromptCacheMissTokens int `json:"prompt_cache_miss_tokens,omitempty"`
}

// ChatCompletionChunk is one decoded streaming chunk
type ChatCompletionChunk struct {
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice carries the incremental delta of one choice
type ChunkChoice struct {
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

// ChunkDelta is the incremental content of a streaming chunk
type ChunkDelta struct {
	Content *string `json:"content,omitempty"`
}

// ChatCompletionResponse is the non-streaming response shape
type ChatCompletionResponse struct {
	Choices []ResponseChoice `json:"choices"`
	Usage   *Usage           `json:"usage,omitempty"`
}

// ResponseChoice is one completion choice of a non-streaming response
type ResponseChoice struct {
	Message *ResponseMessage `json:"message,omitempty"`
}

// ResponseMessage is the assistant message of a completion choice
type ResponseMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
