package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/models"
	"github.com/avendel/supportbot/internal/prompt"
)

type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIGenerator(apiKey string, model string, maxTokens int, temperature float64, logger *zap.Logger) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate submits the assembled turns as a chat completion. When an image
// payload is present it is attached to the final user turn as a data URI
// part.
func (g *OpenAIGenerator) Generate(ctx context.Context, turns []prompt.Turn, image []byte) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(turn.Role),
			Content: turn.Content,
		})
	}

	if len(image) > 0 && len(messages) > 0 {
		last := &messages[len(messages)-1]
		dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
		last.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: last.Content},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURI}},
		}
		last.Content = ""
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: float32(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type memoryExtraction struct {
	Interests          []string          `json:"interests"`
	Goals              []string          `json:"goals"`
	CommunicationStyle string            `json:"communication_style"`
	Preferences        map[string]string `json:"preferences"`
}

// ExtractMemory asks the model for a structured profile update derived
// from the latest exchange. Failures are logged and swallowed: memory
// extraction is best-effort and never blocks a reply.
func (g *OpenAIGenerator) ExtractMemory(ctx context.Context, userMessage, reply string) (*models.MemoryUpdate, error) {
	extractionPrompt := fmt.Sprintf(`From the exchange below, extract anything durable worth remembering about the user.

Return a JSON object with this structure, including ONLY fields you are confident about (omit the rest):
{
    "interests": ["interest1", ...],
    "goals": ["goal1", ...],
    "communication_style": "label",
    "preferences": {"key": "value", ...}
}

Return {} if there is nothing worth remembering.

User: %s
Assistant: %s`, userMessage, reply)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: extractionPrompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		g.logger.Warn("Memory extraction request failed", zap.Error(err))
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	var extracted memoryExtraction
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		g.logger.Warn("Failed to parse memory extraction response",
			zap.Error(err),
			zap.String("response", raw))
		return nil, nil
	}

	update := models.MemoryUpdate{
		Interests: extracted.Interests,
		Goals:     extracted.Goals,
	}
	if extracted.CommunicationStyle != "" {
		style := extracted.CommunicationStyle
		update.CommunicationStyle = &style
	}
	if len(extracted.Preferences) > 0 {
		update.Preferences = make(map[string]models.PreferenceValue, len(extracted.Preferences))
		for k, v := range extracted.Preferences {
			update.Preferences[k] = models.StringPref(v)
		}
	}

	if update.Interests == nil && update.Goals == nil &&
		update.CommunicationStyle == nil && update.Preferences == nil {
		return nil, nil
	}
	return &update, nil
}

func openAIRole(role models.Role) string {
	if role == models.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
