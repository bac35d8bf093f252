package service

import "errors"

var ErrPresetNotFound = errors.New("preset not found")

// Preset is a named option list a client can spin without typing options.
type Preset struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

func GetPresets() []Preset {
	return []Preset{
		{
			ID:          "work",
			Name:        "Work",
			Icon:        "🛠️",
			Description: "What kind of work to pick up next",
			Options:     []string{"Deep work", "Admin tasks", "Creative play", "Learning", "Rest", "Connect with someone"},
		},
		{
			ID:          "energy",
			Name:        "Energy",
			Icon:        "⚡",
			Description: "Match the task to how you feel",
			Options:     []string{"High focus", "Low energy okay", "Body double", "Change location", "Caffeine", "Movement"},
		},
		{
			ID:          "creative",
			Name:        "Creative",
			Icon:        "🎨",
			Description: "A prompt to shake an idea loose",
			Options:     []string{"Constraint-based", "Mashup two ideas", "Opposite approach", "Tiny version", "Wild exaggeration", "Steal from nature"},
		},
		{
			ID:          "yesno",
			Name:        "Yes / No",
			Icon:        "🎲",
			Description: "For decisions that need a nudge",
			Options:     []string{"Hell yes", "Not now", "Modify it", "Ask someone", "Sleep on it", "Flip a coin"},
		},
		{
			ID:          "mood",
			Name:        "Mood",
			Icon:        "🌙",
			Description: "Pick a mood to work in",
			Options:     []string{"Curious", "Playful", "Slightly unhinged", "Gentle", "Fierce", "Mysterious"},
		},
	}
}

// GetPreset returns a copy of the preset, so callers may mutate its options.
func GetPreset(id string) (Preset, error) {
	for _, p := range GetPresets() {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, ErrPresetNotFound
}
