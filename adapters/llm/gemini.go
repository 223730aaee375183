package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/interview-coach/domain/repositories"
)

const (
	defaultModel      = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultAPIVersion = "v1alpha"
)

// GeminiLiveConfig holds configuration for the Gemini Live dialer
// Optional fields with defaults:
// - Model: the native-audio model (default: "gemini-2.5-flash-native-audio-preview-12-2025")
// - APIVersion: API version ephemeral tokens are valid for (default: "v1alpha")
type GeminiLiveConfig struct {
	Model      string
	APIVersion string
}

// GeminiLive opens live audio sessions with the Gemini API using ephemeral tokens
type GeminiLive struct {
	model      string
	apiVersion string
	logger     *zap.Logger
}

// Ensure GeminiLive implements the LiveDialer interface
var _ repositories.LiveDialer = (*GeminiLive)(nil)

// NewGeminiLive creates a new Gemini Live dialer
func NewGeminiLive(config GeminiLiveConfig, logger *zap.Logger) *GeminiLive {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	apiVersion := config.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	return &GeminiLive{
		model:      model,
		apiVersion: apiVersion,
		logger:     logger,
	}
}

// Dial connects to the live endpoint and starts the receive loop
func (g *GeminiLive) Dial(ctx context.Context, token string, config repositories.LiveConfig, callbacks repositories.LiveCallbacks) (repositories.LiveSession, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      token,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: g.apiVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = g.model
	}

	session, err := client.Live.Connect(ctx, model, buildConnectConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	g.logger.Info("Live session connected", zap.String("model", model))

	s := newGeminiLiveSession(session, callbacks, g.logger)
	callbacks.Open()
	go s.receiveLoop()
	return s, nil
}

func buildConnectConfig(config repositories.LiveConfig) *genai.LiveConnectConfig {
	declarations := make([]*genai.FunctionDeclaration, 0, len(config.Tools))
	for _, t := range config.Tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		})
	}

	connect := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if config.SystemInstruction != "" {
		connect.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(config.SystemInstruction)},
		}
	}
	if len(declarations) > 0 {
		connect.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}
	return connect
}
