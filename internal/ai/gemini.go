// Package ai classifies free-text patient issues with Google Gemini. The
// cascade uses the urgency and specialty labels to decide how far to search
// for a replacement slot and which doctors to consider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/medly/go-clinic/internal/observability/metrics"
)

// Classifier labels a free-text patient issue.
type Classifier interface {
	Classify(ctx context.Context, issue string) (string, error)
}

const urgencySystemPrompt = `You are an AI triage assistant responsible for evaluating patient-reported medical issues.
Your primary task is to analyze the symptoms, context, and details provided in the patient's message to determine its urgency.
Based on your analysis, you must assign an urgency level that dictates the required response priority.
You must classify the situation into one of three specific categories: "high", "medium", or "low".
Your final output for this assessment must be only one of these three exact terms.`

const specialtySystemPrompt = `You are an AI assistant. Your job is to determine the single best medical specialty (e.g., 'Cardiologist', 'General Practitioner') required for a given medical issue.
Respond *only* with the name of the specialty. Do not add any other text.`

const chatSystemPrompt = `You are a chat bot.`

// Client wraps the Gemini API for single-turn classification prompts.
type Client struct {
	client  *genai.Client
	modelID string
	metrics *metrics.Metrics
}

// NewClient creates a Gemini client. The model id defaults to
// gemini-2.5-flash when empty.
func NewClient(ctx context.Context, apiKey, modelID string, m *metrics.Metrics) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: failed to create gemini client: %w", err)
	}

	return &Client{client: client, modelID: modelID, metrics: m}, nil
}

// Urgency returns the urgency classifier backed by this client.
func (c *Client) Urgency() *GeminiClassifier {
	return &GeminiClassifier{client: c, system: urgencySystemPrompt}
}

// Specialty returns the specialty classifier backed by this client.
func (c *Client) Specialty() *GeminiClassifier {
	return &GeminiClassifier{client: c, system: specialtySystemPrompt}
}

// Chat returns the free-form assistant backed by this client. Unlike the
// classifiers its output is a full reply, not a label.
func (c *Client) Chat() *GeminiClassifier {
	return &GeminiClassifier{client: c, system: chatSystemPrompt}
}

// Close releases resources held by the Gemini client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) generate(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveClassifier(time.Since(start))
	}()

	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(system))

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("ai: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("ai: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("ai: gemini returned empty content")
	}

	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

// GeminiClassifier runs a fixed system prompt against the patient issue.
type GeminiClassifier struct {
	client *Client
	system string
}

func (g *GeminiClassifier) Classify(ctx context.Context, issue string) (string, error) {
	return g.client.generate(ctx, g.system, issue)
}
