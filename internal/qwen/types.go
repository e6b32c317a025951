package qwen

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the DashScope-compatible chat completions payload.
// Temperature is pinned to 0 and a pure-JSON response is requested, so both
// fields serialize unconditionally.
type completionRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []Message      `json:"messages"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// completionResponse mirrors the slice of the provider response we consume.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
