package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiClient is an implementation of the IntentClassifier interface using Google Gemini
type GeminiClient struct {
	client       *genai.Client
	model        *genai.GenerativeModel
	modelName    string
	maxTokens    int
	temperature  float32
	topP         float32
	maxBodySize  int
	logger       *zap.Logger
	promptFormat string
}

// intentAnalysisResponse represents the structured response from the model
type intentAnalysisResponse struct {
	IsMeetingRequest bool     `json:"is_meeting_request"`
	Confidence       float64  `json:"confidence"`
	DurationMinutes  int      `json:"duration_minutes"`
	TimeFrame        string   `json:"time_frame"`
	Purpose          string   `json:"purpose"`
	Attendees        []string `json:"attendees"`
	Location         string   `json:"location"`
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:      client,
		model:       model,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		maxBodySize: maxBodySize,
		logger:      logger,
		promptFormat: `You are a meeting request detector. Analyze the following email and determine if the sender is asking to schedule a meeting.
Respond with a JSON object containing:
- is_meeting_request: boolean (true if the email asks to schedule a meeting)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- duration_minutes: number (requested meeting length in minutes, 0 if not stated)
- time_frame: string (the raw phrase describing when, empty if none)
- purpose: string (brief description of what the meeting is about)
- attendees: array of strings (email addresses or names of other requested participants)
- location: string (requested location or platform, empty if none)

Email:
From: %s
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// truncateBody truncates the email body if it exceeds the maximum size
func (c *GeminiClient) truncateBody(body string) string {
	if c.maxBodySize <= 0 || len(body) <= c.maxBodySize {
		return body
	}

	truncated := body[:c.maxBodySize]
	c.logger.Debug("Email body truncated",
		zap.Int("original_size", len(body)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", c.maxBodySize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// Classify analyzes an email to determine if it requests a meeting
func (c *GeminiClient) Classify(ctx context.Context, email *core.Email) (*core.IntentResult, error) {
	// Format the prompt with email details
	to := ""
	if len(email.To) > 0 {
		to = email.To[0]
		if len(email.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.To)-1)
		}
	}

	truncatedBody := c.truncateBody(email.Body)

	prompt := fmt.Sprintf(c.promptFormat, email.From, to, email.Subject, truncatedBody)

	// Call Gemini API
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	analysis, err := parseIntentResponse(responseText)
	if err != nil {
		return nil, err
	}

	return &core.IntentResult{
		IsMeetingRequest: analysis.IsMeetingRequest,
		Confidence:       analysis.Confidence,
		Details: core.IntentDetails{
			DurationMinutes: analysis.DurationMinutes,
			TimeFrame:       analysis.TimeFrame,
			Purpose:         analysis.Purpose,
			Attendees:       analysis.Attendees,
			Location:        analysis.Location,
		},
		ModelUsed:    c.modelName,
		ClassifiedAt: time.Now(),
	}, nil
}

// parseIntentResponse decodes the model's JSON reply, falling back to
// extracting the first JSON object embedded in surrounding text
func parseIntentResponse(responseText string) (*intentAnalysisResponse, error) {
	var analysis intentAnalysisResponse
	if err := json.Unmarshal([]byte(responseText), &analysis); err != nil {
		jsonStart := 0
		jsonEnd := len(responseText)

		for i := 0; i < len(responseText); i++ {
			if responseText[i] == '{' {
				jsonStart = i
				break
			}
		}

		for i := len(responseText) - 1; i >= 0; i-- {
			if responseText[i] == '}' {
				jsonEnd = i + 1
				break
			}
		}

		if jsonStart >= jsonEnd {
			return nil, fmt.Errorf("failed to extract JSON from model response: %w", err)
		}
		jsonStr := responseText[jsonStart:jsonEnd]
		if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
			return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
		}
	}
	return &analysis, nil
}
