package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/models"
	"github.com/avendel/supportbot/internal/prompt"
)

// newFakeBackend returns a generator wired to a test server that captures
// the last chat completion request and replies with content.
func newFakeBackend(t *testing.T, content string) (*OpenAIGenerator, *openai.ChatCompletionRequest) {
	t.Helper()

	var captured openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       "test-model",
		maxTokens:   100,
		temperature: 0.5,
		logger:      zap.NewNop(),
	}, &captured
}

func TestGenerateMapsTurns(t *testing.T) {
	g, captured := newFakeBackend(t, "  a reply  ")

	turns := []prompt.Turn{
		{Role: models.RoleUser, Content: "instructions"},
		{Role: models.RoleAssistant, Content: "ack"},
		{Role: models.RoleUser, Content: "hi"},
	}
	reply, err := g.Generate(context.Background(), turns, nil)
	require.NoError(t, err)
	assert.Equal(t, "a reply", reply)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleUser, captured.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, captured.Messages[1].Role)
	assert.Equal(t, "hi", captured.Messages[2].Content)
}

func TestGenerateAttachesImage(t *testing.T) {
	g, captured := newFakeBackend(t, "looks nice")

	turns := []prompt.Turn{{Role: models.RoleUser, Content: "what's this?"}}
	_, err := g.Generate(context.Background(), turns, []byte{0xff, 0xd8})
	require.NoError(t, err)

	last := captured.Messages[len(captured.Messages)-1]
	require.Len(t, last.MultiContent, 2)
	assert.Equal(t, openai.ChatMessagePartTypeText, last.MultiContent[0].Type)
	assert.Equal(t, "what's this?", last.MultiContent[0].Text)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, last.MultiContent[1].Type)
	assert.Contains(t, last.MultiContent[1].ImageURL.URL, "data:image/jpeg;base64,")
}

func TestExtractMemoryParsesUpdate(t *testing.T) {
	g, _ := newFakeBackend(t, `{"goals":["sleep better"],"communication_style":"direct","preferences":{"name":"Ann"}}`)

	update, err := g.ExtractMemory(context.Background(), "I want to sleep better", "Let's work on that")
	require.NoError(t, err)
	require.NotNil(t, update)

	assert.Equal(t, []string{"sleep better"}, update.Goals)
	require.NotNil(t, update.CommunicationStyle)
	assert.Equal(t, "direct", *update.CommunicationStyle)
	assert.Equal(t, "Ann", update.Preferences["name"].String())
	assert.Nil(t, update.Interests)
}

func TestExtractMemoryNothingToRemember(t *testing.T) {
	g, _ := newFakeBackend(t, `{}`)

	update, err := g.ExtractMemory(context.Background(), "hi", "hello")
	require.NoError(t, err)
	assert.Nil(t, update)
}

func TestExtractMemorySwallowsGarbage(t *testing.T) {
	g, _ := newFakeBackend(t, "not json at all")

	update, err := g.ExtractMemory(context.Background(), "hi", "hello")
	require.NoError(t, err)
	assert.Nil(t, update)
}
