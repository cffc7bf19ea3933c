// Package prompt deterministically builds the ordered turn sequence sent
// to the generation backend from a session's history and memory profile.
package prompt

import (
	"sort"
	"strings"

	"github.com/avendel/supportbot/internal/models"
)

// Turn is one (role, text) pair ready for submission. Roles use the
// transport's user/assistant vocabulary: the instruction block travels as
// a user turn because not every backend has a dedicated system channel.
type Turn struct {
	Role    models.Role
	Content string
}

// Acknowledgment is the fixed respondent turn that closes the in-band
// instruction pair.
const Acknowledgment = "Understood. I'm here and ready to continue our conversation."

// Assembler composes generation context. It holds no mutable state:
// Assemble is a pure function of its inputs.
type Assembler struct {
	persona   *Persona
	useMemory bool
}

// NewAssembler builds an assembler. A nil persona falls back to the
// built-in default text.
func NewAssembler(persona *Persona, enableMemory bool) *Assembler {
	return &Assembler{persona: persona, useMemory: enableMemory}
}

// Assemble produces the ordered turn sequence: the instruction block and
// its fixed acknowledgment, then every non-system history message in
// original order.
func (a *Assembler) Assemble(history []models.Message, memory *models.MemoryProfile) []Turn {
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns,
		Turn{Role: models.RoleUser, Content: a.instructionBlock(memory)},
		Turn{Role: models.RoleAssistant, Content: Acknowledgment},
	)

	for _, msg := range history {
		if msg.Role == models.RoleSystem {
			continue
		}
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

func (a *Assembler) instructionBlock(memory *models.MemoryProfile) string {
	var paragraphs []string

	text := DefaultPersonaText
	if a.persona != nil && a.persona.Persona != "" {
		text = a.persona.Persona
	}
	paragraphs = append(paragraphs, text)

	if a.persona != nil {
		if a.persona.Tone != "" {
			paragraphs = append(paragraphs, "Tone: "+a.persona.Tone)
		}
		if a.persona.Style != "" {
			paragraphs = append(paragraphs, "Style: "+a.persona.Style)
		}
		for _, instr := range a.persona.Instructions {
			if instr != "" {
				paragraphs = append(paragraphs, instr)
			}
		}
	}

	if a.useMemory && memory != nil {
		if summary := renderMemory(memory); summary != "" {
			paragraphs = append(paragraphs, "What you remember about this user: "+summary)
		}
	}

	return strings.Join(paragraphs, "\n\n")
}

// renderMemory flattens the profile into semicolon-joined clauses, one per
// present field. Preference keys are sorted so output is deterministic.
func renderMemory(memory *models.MemoryProfile) string {
	var clauses []string

	if len(memory.Interests) > 0 {
		clauses = append(clauses, "interests: "+strings.Join(memory.Interests, ", "))
	}
	if len(memory.Goals) > 0 {
		clauses = append(clauses, "goals: "+strings.Join(memory.Goals, ", "))
	}
	if memory.CommunicationStyle != "" {
		clauses = append(clauses, "communication style: "+memory.CommunicationStyle)
	}
	if len(memory.Preferences) > 0 {
		keys := make([]string, 0, len(memory.Preferences))
		for k := range memory.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+": "+memory.Preferences[k].String())
		}
		clauses = append(clauses, "preferences: "+strings.Join(pairs, ", "))
	}

	return strings.Join(clauses, "; ")
}
