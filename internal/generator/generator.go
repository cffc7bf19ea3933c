package generator

import (
	"context"

	"github.com/avendel/supportbot/internal/models"
	"github.com/avendel/supportbot/internal/prompt"
)

// Generator is the boundary to the generation backend. It receives the
// assembled turn sequence plus an optional binary image payload and
// returns a plain text reply.
type Generator interface {
	Generate(ctx context.Context, turns []prompt.Turn, image []byte) (string, error)

	// Transcribe converts a voice note to text.
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)

	// ExtractMemory derives a partial memory profile update from the
	// latest exchange. A nil update means nothing worth remembering.
	ExtractMemory(ctx context.Context, userMessage, reply string) (*models.MemoryUpdate, error)
}
