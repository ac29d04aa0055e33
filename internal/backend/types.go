package backend

// ChatRequest represents the request body for POST /chat/
type ChatRequest struct {
	Message      string  `json:"message"`
	SessionID    *string `json:"session_id"` // null on the first turn
	UseDocuments bool    `json:"use_documents"`
}

// ChatResponse represents the response from POST /chat/
type ChatResponse struct {
	Reply     string                   `json:"reply"`
	SessionID string                   `json:"session_id"`
	Sources   []map[string]interface{} `json:"sources,omitempty"`
}

// UploadResponse represents the response from POST /documents/upload
type UploadResponse struct {
	DocID        string  `json:"doc_id"`
	Filename     string  `json:"filename"`
	Subject      *string `json:"subject,omitempty"`
	ChunksStored int     `json:"chunks_stored"`
	Message      string  `json:"message"`
}

// LLMConfig represents the body of GET and POST /config/llm
type LLMConfig struct {
	Provider string `json:"provider"`
}
