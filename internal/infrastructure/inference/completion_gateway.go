package inference

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"chat-server/internal/config"
	"chat-server/internal/domain/conversation"
	"chat-server/internal/infrastructure/metrics"
	"chat-server/internal/utils/platformerrors"
)

// CompletionClient is the external chat-completion API surface the gateway
// depends on; satisfied by the openai client.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGateway forwards one prompt per call to an OpenAI-compatible
// completion endpoint. Stateless; no retry, so a user action maps to at most
// one upstream request.
type OpenAIGateway struct {
	client CompletionClient
	model  string
	log    zerolog.Logger
}

var _ conversation.CompletionGateway = (*OpenAIGateway)(nil)

// NewOpenAIGateway builds the gateway from service configuration.
func NewOpenAIGateway(cfg *config.Config, log zerolog.Logger) *OpenAIGateway {
	clientConfig := openai.DefaultConfig(cfg.CompletionAPIKey)
	clientConfig.BaseURL = cfg.CompletionBaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.CompletionTimeout}

	return &OpenAIGateway{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.CompletionModel,
		log:    log.With().Str("component", "completion-gateway").Logger(),
	}
}

// NewOpenAIGatewayWithClient builds a gateway around an existing client.
func NewOpenAIGatewayWithClient(client CompletionClient, model string, log zerolog.Logger) *OpenAIGateway {
	return &OpenAIGateway{
		client: client,
		model:  model,
		log:    log.With().Str("component", "completion-gateway").Logger(),
	}
}

// Complete implements conversation.CompletionGateway.
func (g *OpenAIGateway) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		metrics.CompletionsTotal.WithLabelValues(g.model, "error").Inc()
		g.log.Error().Err(err).Str("model", g.model).Msg("completion request failed")
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUpstream, "completion request failed", err, "f2b7d4a9-8e1c-4360-b95f-3c6a0d8e2f17")
	}
	if len(resp.Choices) == 0 {
		metrics.CompletionsTotal.WithLabelValues(g.model, "empty").Inc()
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUpstream, "completion response had no choices", nil, "7e4c1a8f-5d2b-4973-8a0e-6b9f3d5c1a82")
	}

	metrics.CompletionsTotal.WithLabelValues(g.model, "ok").Inc()
	return resp.Choices[0].Message.Content, nil
}
