package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for the OpenAI-compatible providers.
const (
	OpenAIDefaultModel = "gpt-4o-mini"

	// FireworksDefaultModel is the judge model served by Fireworks.
	FireworksDefaultModel = "accounts/fireworks/models/gpt-oss-20b"
	// FireworksBaseURL is the OpenAI-compatible Fireworks inference endpoint.
	FireworksBaseURL = "https://api.fireworks.ai/inference/v1"
)

func init() {
	RegisterProviderFactory(ProviderOpenAI, openAICompatible(ProviderOpenAI, OpenAIDefaultModel, ""))
	RegisterProviderFactory(ProviderFireworks, openAICompatible(ProviderFireworks, FireworksDefaultModel, FireworksBaseURL))
}

// openAIProvider speaks the chat completions protocol. Fireworks exposes the
// same protocol under a different base URL.
type openAIProvider struct {
	BaseProvider
	client     *openai.Client
	classifier *ErrorClassifier
}

func openAICompatible(name, defaultModel, defaultBaseURL string) ProviderFactory {
	return func(config ClientConfig) (CoreLLM, error) {
		if config.APIKey == "" {
			return nil, ErrEmptyAPIKey
		}

		model := config.Model
		if model == "" {
			model = defaultModel
		}

		clientConfig := openai.DefaultConfig(config.APIKey)
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		if baseURL != "" {
			validated, err := validateBaseURL(baseURL)
			if err != nil {
				return nil, err
			}
			clientConfig.BaseURL = validated
		}
		if config.Timeout > 0 {
			clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
		}

		return &openAIProvider{
			BaseProvider: BaseProvider{model: model},
			client:       openai.NewClientWithConfig(clientConfig),
			classifier:   &ErrorClassifier{Provider: name},
		}, nil
	}
}

// DoRequest implements CoreLLM.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(prompt, options))
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, NewProviderError(p.classifier.Provider, ErrorTypeUnknown, 0, "", ErrNoResponseChoice)
	}

	content := resp.Choices[0].Message.Content
	tokensIn := tokenCount(int64(resp.Usage.PromptTokens), options.System+prompt)
	tokensOut := tokenCount(int64(resp.Usage.CompletionTokens), content)
	return content, tokensIn, tokensOut, nil
}

func (p *openAIProvider) buildRequest(prompt string, options RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if options.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     options.Model,
		Messages:  messages,
		MaxTokens: options.MaxTokens,
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
		// go-openai omits a zero temperature, so send the smallest one instead.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	return req
}

func (p *openAIProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, fmt.Sprintf("status %d", reqErr.HTTPStatusCode), err)
	}

	return NewProviderError(p.classifier.Provider, ErrorTypeNetwork, 0, "request failed", err)
}
