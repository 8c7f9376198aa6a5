package state

// PlayerProgress is the persistent player state for one chapter attempt.
// The engine mutates it in memory through the Manager; serializing it to a
// backend is the host application's concern (the bookmark effect marks the
// sync points).
type PlayerProgress struct {
	StoryID       string                       `json:"storyId"`
	ChapterID     string                       `json:"chapterId"`
	ResumeNodeID  string                       `json:"resumeNodeId"`
	Variables     map[string]any               `json:"variables"`
	Customization map[string]map[string]string `json:"customization,omitempty"`
}

// DefaultVariables returns the stat and currency seed applied to every
// progress record on initialization. Existing values are never
// overwritten, only missing keys are filled in.
func DefaultVariables() map[string]any {
	return map[string]any{
		"Confidence": float64(0),
		"Empathy":    float64(0),
		"Creativity": float64(0),
		"diamonds":   float64(100),
		"tickets":    float64(5),
	}
}

// Clone returns a deep copy, safe to hand to a checkpoint sink while the
// engine keeps mutating the original.
func (p *PlayerProgress) Clone() PlayerProgress {
	out := *p
	if p.Variables != nil {
		out.Variables = make(map[string]any, len(p.Variables))
		for k, v := range p.Variables {
			out.Variables[k] = v
		}
	}
	if p.Customization != nil {
		out.Customization = make(map[string]map[string]string, len(p.Customization))
		for character, parts := range p.Customization {
			cp := make(map[string]string, len(parts))
			for slot, part := range parts {
				cp[slot] = part
			}
			out.Customization[character] = cp
		}
	}
	return out
}
