package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PreferenceValue is a closed scalar variant: string, number, or boolean.
// It marshals as the bare JSON scalar.
type PreferenceValue struct {
	kind prefKind
	str  string
	num  float64
	b    bool
}

type prefKind int

const (
	prefString prefKind = iota
	prefNumber
	prefBool
)

func StringPref(v string) PreferenceValue  { return PreferenceValue{kind: prefString, str: v} }
func NumberPref(v float64) PreferenceValue { return PreferenceValue{kind: prefNumber, num: v} }
func BoolPref(v bool) PreferenceValue      { return PreferenceValue{kind: prefBool, b: v} }

// String renders the scalar for display and prompt building.
func (p PreferenceValue) String() string {
	switch p.kind {
	case prefNumber:
		return strconv.FormatFloat(p.num, 'f', -1, 64)
	case prefBool:
		return strconv.FormatBool(p.b)
	default:
		return p.str
	}
}

func (p PreferenceValue) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case prefNumber:
		return json.Marshal(p.num)
	case prefBool:
		return json.Marshal(p.b)
	default:
		return json.Marshal(p.str)
	}
}

func (p *PreferenceValue) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*p = StringPref(t)
	case float64:
		*p = NumberPref(t)
	case bool:
		*p = BoolPref(t)
	default:
		return fmt.Errorf("preference value must be a string, number, or boolean, got %T", v)
	}
	return nil
}

// MemoryProfile is the structured long-lived summary of a user, attached
// 1:1 to a session.
type MemoryProfile struct {
	Interests          []string                   `json:"interests"`
	Goals              []string                   `json:"goals"`
	CommunicationStyle string                     `json:"communication_style"`
	Preferences        map[string]PreferenceValue `json:"preferences"`
}

// MemoryUpdate is a partial profile. Nil fields are omitted from the merge;
// set fields replace the corresponding profile field wholesale.
type MemoryUpdate struct {
	Interests          []string                   `json:"interests,omitempty"`
	Goals              []string                   `json:"goals,omitempty"`
	CommunicationStyle *string                    `json:"communication_style,omitempty"`
	Preferences        map[string]PreferenceValue `json:"preferences,omitempty"`
}

// Merge applies the partial update shallowly: each provided field replaces
// the existing one, omitted fields are left untouched.
func (m *MemoryProfile) Merge(update MemoryUpdate) {
	if update.Interests != nil {
		m.Interests = update.Interests
	}
	if update.Goals != nil {
		m.Goals = update.Goals
	}
	if update.CommunicationStyle != nil {
		m.CommunicationStyle = *update.CommunicationStyle
	}
	if update.Preferences != nil {
		m.Preferences = update.Preferences
	}
}

// Clone returns a deep copy so callers can hold a profile without aliasing
// the store's copy.
func (m MemoryProfile) Clone() MemoryProfile {
	out := MemoryProfile{
		Interests:          append([]string(nil), m.Interests...),
		Goals:              append([]string(nil), m.Goals...),
		CommunicationStyle: m.CommunicationStyle,
	}
	if m.Preferences != nil {
		out.Preferences = make(map[string]PreferenceValue, len(m.Preferences))
		for k, v := range m.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

// DefaultProfile is the memory profile seeded into every new session.
// The concrete values are a deployment default, not a contract.
func DefaultProfile() MemoryProfile {
	return MemoryProfile{
		Interests:          []string{"emotional well-being"},
		Goals:              []string{"feel heard and supported"},
		CommunicationStyle: "warm and supportive",
		Preferences:        make(map[string]PreferenceValue),
	}
}
