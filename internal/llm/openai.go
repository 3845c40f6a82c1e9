package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider is an OpenAI chat completions provider.
type OpenAIProvider struct {
	Model  string
	APIKey string
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL uses the
// public API.
func NewOpenAIProvider(model, apiKeyEnv, baseURL string) *OpenAIProvider {
	key := os.Getenv(apiKeyEnv)
	return &OpenAIProvider{
		Model:  model,
		APIKey: key,
		client: openai.NewClient(clientOptions(key, baseURL)...),
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Complete sends the request to OpenAI and returns the first choice.
func (o *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	Model     string
	APIKey    string
	Dimension int
	client    openai.Client
}

// NewOpenAIEmbedder creates a new OpenAI embedder. dimension is only sent
// for models that accept a reduced output size.
func NewOpenAIEmbedder(model, apiKeyEnv, baseURL string, dimension int) *OpenAIEmbedder {
	key := os.Getenv(apiKeyEnv)
	return &OpenAIEmbedder{
		Model:     model,
		APIKey:    key,
		Dimension: dimension,
		client:    openai.NewClient(clientOptions(key, baseURL)...),
	}
}

// IsConfigured checks if the API key is set.
func (e *OpenAIEmbedder) IsConfigured() bool {
	return e.APIKey != ""
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.Model),
	}
	if e.Dimension > 0 && strings.HasPrefix(e.Model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.Dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

func clientOptions(apiKey, baseURL string) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
