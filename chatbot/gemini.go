package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultGeminiModel = "gemini-1.5-flash"

	systemInstruction = "You are the DefenseEye assistant. Answer questions about CMMC compliance, " +
		"NIST SP 800-171 practices and security findings in a few sentences. " +
		"Politely decline anything unrelated to cybersecurity compliance."
)

var errEmptyAnswer = errors.New("model returned no text")

// generator is the subset of *genai.GenerativeModel used here.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini answers through a Gemini model and falls back to the canned table
// when the model fails or answers with nothing.
type Gemini struct {
	client   *genai.Client
	model    generator
	fallback Canned
	logger   *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}

	return &Gemini{client: client, model: model, logger: slog.Default()}, nil
}

func (g *Gemini) Respond(ctx context.Context, message string) (string, error) {
	answer, err := g.generate(ctx, message)
	if err != nil {
		g.logger.WarnContext(ctx, "gemini answer failed, using canned response", slog.Any("error", err))
		return g.fallback.Lookup(message), nil
	}
	return answer, nil
}

func (g *Gemini) generate(ctx context.Context, message string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(message))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyAnswer
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", errEmptyAnswer
	}
	return answer, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
