package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when no model is configured.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory(ProviderGoogle, newGoogleProvider)
}

// googleProvider implements CoreLLM over the Gemini API.
type googleProvider struct {
	BaseProvider
	client     *genai.Client
	classifier *ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		validated, err := validateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		clientConfig.HTTPOptions.BaseURL = validated
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider: BaseProvider{model: model},
		client:       client,
		classifier:   &ErrorClassifier{Provider: ProviderGoogle},
	}, nil
}

// DoRequest implements CoreLLM.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(options.MaxTokens, math.MaxInt32)),
	}
	if options.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*options.Temperature))
	}
	if options.System != "" {
		config.SystemInstruction = genai.NewContentFromText(options.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, config)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	content := resp.Text()
	var reportedIn, reportedOut int64
	if resp.UsageMetadata != nil {
		reportedIn = int64(resp.UsageMetadata.PromptTokenCount)
		reportedOut = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return content, tokenCount(reportedIn, options.System+prompt), tokenCount(reportedOut, content), nil
}

func (p *googleProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if blockedBySafety(apiErr.Message) {
			return NewProviderError(ProviderGoogle, ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		message := gErr.Message
		if message == "" && len(gErr.Errors) > 0 {
			message = gErr.Errors[0].Message
		}
		if blockedBySafety(message) {
			return NewProviderError(ProviderGoogle, ErrorTypeContentPolicy, gErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(gErr.Code, message, err)
	}

	return NewProviderError(ProviderGoogle, ErrorTypeNetwork, 0, "request failed", err)
}

func blockedBySafety(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}
