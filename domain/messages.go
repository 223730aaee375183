package domain

// ServerMessage is one inbound message from the live conversational endpoint.
// Concrete types are SetupComplete, ToolCall, ContentChunk and Interrupted.
type ServerMessage interface {
	serverMessage()
}

// SetupComplete signals that the remote side accepted the session setup
type SetupComplete struct{}

// ToolCall carries the function calls requested by the model
type ToolCall struct {
	Calls []FunctionCall
}

// FunctionCall is a single requested client-side action
type FunctionCall struct {
	ID   string
	Name string
}

// ContentChunk carries model-turn audio parts, each base64 PCM16 at the output rate
type ContentChunk struct {
	AudioParts []string
}

// Interrupted signals that in-flight model speech must be cancelled
type Interrupted struct{}

func (SetupComplete) serverMessage() {}
func (ToolCall) serverMessage()      {}
func (ContentChunk) serverMessage()  {}
func (Interrupted) serverMessage()   {}

// Includes reports whether any call targets the named function
func (t ToolCall) Includes(name string) bool {
	for _, c := range t.Calls {
		if c.Name == name {
			return true
		}
	}
	return false
}

// AudioInput is one realtime audio message sent to the endpoint
type AudioInput struct {
	Data     string `json:"data"` // base64 encoded
	MIMEType string `json:"mime_type"`
}

// FunctionResponse acknowledges a FunctionCall
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// OKResponses builds the fixed success acknowledgement for every call
func OKResponses(calls []FunctionCall) []FunctionResponse {
	out := make([]FunctionResponse, 0, len(calls))
	for _, c := range calls {
		out = append(out, FunctionResponse{
			ID:       c.ID,
			Name:     c.Name,
			Response: map[string]any{"result": "ok"},
		})
	}
	return out
}
