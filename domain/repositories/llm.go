package repositories

import (
	"context"

	"github.com/satriahrh/interview-coach/domain"
)

// LiveDialer opens bidirectional streaming sessions with the conversational model
type LiveDialer interface {
	// Dial connects using an ephemeral token. Callbacks may fire from another
	// goroutine as soon as the connection is established, possibly before Dial returns.
	Dial(ctx context.Context, token string, config LiveConfig, callbacks LiveCallbacks) (LiveSession, error)
}

// LiveSession is one open streaming session
type LiveSession interface {
	SendAudio(input domain.AudioInput) error
	SendToolResponse(responses []domain.FunctionResponse) error
	Close() error
}

// LiveConfig holds the session setup parameters
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Tools             []FunctionDeclaration
}

// FunctionDeclaration declares a client-side function the model may call
type FunctionDeclaration struct {
	Name        string
	Description string
}

// LiveCallbacks receive session-level events. Nil callbacks are skipped.
type LiveCallbacks struct {
	OnOpen    func()
	OnMessage func(msg domain.ServerMessage)
	OnError   func(err error)
	OnClose   func()
}

// Open invokes OnOpen if set
func (c LiveCallbacks) Open() {
	if c.OnOpen != nil {
		c.OnOpen()
	}
}

// Message invokes OnMessage if set
func (c LiveCallbacks) Message(msg domain.ServerMessage) {
	if c.OnMessage != nil {
		c.OnMessage(msg)
	}
}

// Error invokes OnError if set
func (c LiveCallbacks) Error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Close invokes OnClose if set
func (c LiveCallbacks) Close() {
	if c.OnClose != nil {
		c.OnClose()
	}
}
