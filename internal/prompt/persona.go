package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Persona is the externally authored style document. It is loaded once at
// startup and passed by reference into the assembler.
type Persona struct {
	Persona      string   `json:"persona"`
	Tone         string   `json:"tone,omitempty"`
	Style        string   `json:"style,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

// DefaultPersonaText is used when no persona document is configured.
const DefaultPersonaText = "You are a supportive companion. Listen with empathy, reflect back what you hear, and help the user take small realistic steps. You are not a therapist and do not give medical advice."

// LoadPersona reads and validates a persona document from path.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse persona file: %w", err)
	}
	if strings.TrimSpace(p.Persona) == "" {
		return nil, fmt.Errorf("persona file %s: persona text must not be empty", path)
	}
	return &p, nil
}
