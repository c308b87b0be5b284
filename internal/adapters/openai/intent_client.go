package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is an implementation of the IntentClassifier interface using OpenAI
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	promptFormat  string
	textProcessor *utils.TextProcessor
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

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat:  intentPromptFormat,
	}
}

const intentPromptFormat = `You are a meeting request detector. Analyze the following email and determine if the sender is asking to schedule a meeting.
Respond with a JSON object containing:
- is_meeting_request: boolean (true if the email asks to schedule a meeting)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- duration_minutes: number (requested meeting length in minutes, 0 if not stated)
- time_frame: string (the raw phrase describing when, e.g. "next Tuesday afternoon", empty if none)
- purpose: string (brief description of what the meeting is about)
- attendees: array of strings (email addresses or names of other requested participants)
- location: string (requested location or platform, empty if none)

Email:
From: %s
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// Classify analyzes an email to determine if it requests a meeting
func (c *OpenAIClient) Classify(ctx context.Context, email *core.Email) (*core.IntentResult, error) {
	// Format the prompt with email details
	to := ""
	if len(email.To) > 0 {
		to = email.To[0]
		if len(email.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.To)-1)
		}
	}

	// Process the body (truncate and sanitize)
	processedBody := c.textProcessor.ProcessText(email.Body, c.maxBodySize)

	prompt := fmt.Sprintf(c.promptFormat, email.From, to, email.Subject, processedBody)

	// Create the request
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a meeting request detector. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	responseFormat := openai.ChatCompletionResponseFormat{
		Type: "json",
	}
	req.ResponseFormat = &responseFormat

	// Call OpenAI API
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	responseText := resp.Choices[0].Message.Content

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
