package chapter

import (
	"encoding/json"
	"fmt"
)

// Op identifies an effect operation.
type Op string

const (
	OpSet        Op = "set"
	OpInc        Op = "inc"
	OpDec        Op = "dec"
	OpBookmark   Op = "bookmark"
	OpDialogue   Op = "dialogue"
	OpNarration  Op = "narration"
	OpBackground Op = "bg"
	OpCharacter  Op = "character"
	OpShowCG     Op = "showCG"
	OpSfx        Op = "sfx"
	OpMusic      Op = "music"
	OpGoto       Op = "goto"
	OpBranch     Op = "branch"
	OpEndChapter Op = "endChapter"
	OpVfx        Op = "vfx"
)

// Args is the typed argument record of an effect. Each recognized op has
// its own concrete type; an effect whose op is not recognized carries nil
// Args and is skipped by the interpreter.
type Args interface {
	effectArgs()
}

// Effect is one executable instruction: an operation, its typed arguments,
// and an optional guard that must hold at execution time for the effect to
// run. An absent guard means always execute.
type Effect struct {
	Op   Op
	Args Args
	When []Condition
}

// SetArgs assigns a literal value to a variable.
type SetArgs struct {
	Var   string `json:"var"`
	Value any    `json:"value"`
}

// IncArgs increments a numeric variable. Value is the amount; zero or
// absent means 1.
type IncArgs struct {
	Var   string  `json:"var"`
	Value float64 `json:"value,omitempty"`
}

// DecArgs decrements a numeric variable, flooring at zero. Value is the
// amount; zero or absent means 1.
type DecArgs struct {
	Var   string  `json:"var"`
	Value float64 `json:"value,omitempty"`
}

// BookmarkArgs marks a progress checkpoint.
type BookmarkArgs struct {
	Label string `json:"label,omitempty"`
}

// DialogueArgs shows a spoken line and waits for acknowledgement.
type DialogueArgs struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

// NarrationArgs shows a narrated line and waits for acknowledgement.
type NarrationArgs struct {
	Text string `json:"text"`
}

// BackgroundArgs swaps the scene background.
type BackgroundArgs struct {
	ImageKey   string `json:"imageKey"`
	Transition string `json:"transition,omitempty"`
}

// CharacterArgs shows, hides or updates an on-stage character.
type CharacterArgs struct {
	Character string    `json:"character"`
	Action    string    `json:"action"`
	Position  *Position `json:"position,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	Outfit    string    `json:"outfit,omitempty"`
}

// ShowCGArgs displays a full-screen image until dismissed.
type ShowCGArgs struct {
	ImageKey string `json:"imageKey"`
}

// SfxArgs plays a short sound effect, fire-and-forget.
type SfxArgs struct {
	SrcKey string `json:"srcKey"`
}

// MusicArgs starts or stops a music track. Loop defaults to true when
// absent.
type MusicArgs struct {
	Action string `json:"action"`
	SrcKey string `json:"srcKey"`
	Loop   *bool  `json:"loop,omitempty"`
}

// GotoArgs moves the narrative cursor to an unconditional target.
type GotoArgs struct {
	Target string `json:"target"`
}

// BranchArm is one candidate branch: a condition set and its target node.
type BranchArm struct {
	When   []Condition `json:"when"`
	Target string      `json:"target"`
}

// BranchArgs selects the first arm whose conditions hold, falling back to
// Default, falling back to the current node.
type BranchArgs struct {
	Conditions []BranchArm `json:"conditions"`
	Default    string      `json:"default,omitempty"`
}

// EndChapterArgs terminates the chapter.
type EndChapterArgs struct{}

// VfxArgs triggers a visual flourish (shake, flash), fire-and-forget.
type VfxArgs struct {
	Type string `json:"type,omitempty"`
}

func (SetArgs) effectArgs()        {}
func (IncArgs) effectArgs()        {}
func (DecArgs) effectArgs()        {}
func (BookmarkArgs) effectArgs()   {}
func (DialogueArgs) effectArgs()   {}
func (NarrationArgs) effectArgs()  {}
func (BackgroundArgs) effectArgs() {}
func (CharacterArgs) effectArgs()  {}
func (ShowCGArgs) effectArgs()     {}
func (SfxArgs) effectArgs()        {}
func (MusicArgs) effectArgs()      {}
func (GotoArgs) effectArgs()       {}
func (BranchArgs) effectArgs()     {}
func (EndChapterArgs) effectArgs() {}
func (VfxArgs) effectArgs()        {}

// Position places a character either at a named stage slot or at an
// explicit coordinate with optional scale. The JSON form is a plain string
// for a slot, or an {x, y, scale} object.
type Position struct {
	Slot  string
	X     float64
	Y     float64
	Scale float64
}

// UnmarshalJSON accepts both the string and the object form.
func (p *Position) UnmarshalJSON(data []byte) error {
	var slot string
	if err := json.Unmarshal(data, &slot); err == nil {
		p.Slot = slot
		return nil
	}

	var coord struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Scale float64 `json:"scale,omitempty"`
	}
	if err := json.Unmarshal(data, &coord); err != nil {
		return fmt.Errorf("position must be a slot name or an {x,y,scale} object: %w", err)
	}
	p.X = coord.X
	p.Y = coord.Y
	p.Scale = coord.Scale
	return nil
}

// UnmarshalJSON decodes the wire form {op, args, when} into a typed
// effect. Unrecognized ops decode successfully with nil Args so that a
// single unknown instruction never fails a whole chapter load.
func (e *Effect) UnmarshalJSON(data []byte) error {
	var doc struct {
		Op   Op              `json:"op"`
		Args json.RawMessage `json:"args"`
		When []Condition     `json:"when,omitempty"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	args, err := decodeArgs(doc.Op, doc.Args)
	if err != nil {
		return fmt.Errorf("effect %q: %w", doc.Op, err)
	}

	e.Op = doc.Op
	e.Args = args
	e.When = doc.When
	return nil
}

func decodeArgs(op Op, raw json.RawMessage) (Args, error) {
	decode := func(dst any) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}

	switch op {
	case OpSet:
		var a SetArgs
		err := decode(&a)
		return a, err
	case OpInc:
		var a IncArgs
		err := decode(&a)
		return a, err
	case OpDec:
		var a DecArgs
		err := decode(&a)
		return a, err
	case OpBookmark:
		var a BookmarkArgs
		err := decode(&a)
		return a, err
	case OpDialogue:
		var a DialogueArgs
		err := decode(&a)
		return a, err
	case OpNarration:
		var a NarrationArgs
		err := decode(&a)
		return a, err
	case OpBackground:
		var a BackgroundArgs
		err := decode(&a)
		return a, err
	case OpCharacter:
		var a CharacterArgs
		err := decode(&a)
		return a, err
	case OpShowCG:
		var a ShowCGArgs
		err := decode(&a)
		return a, err
	case OpSfx:
		var a SfxArgs
		err := decode(&a)
		return a, err
	case OpMusic:
		var a MusicArgs
		err := decode(&a)
		return a, err
	case OpGoto:
		var a GotoArgs
		err := decode(&a)
		return a, err
	case OpBranch:
		var a BranchArgs
		err := decode(&a)
		return a, err
	case OpEndChapter:
		var a EndChapterArgs
		err := decode(&a)
		return a, err
	case OpVfx:
		var a VfxArgs
		err := decode(&a)
		return a, err
	default:
		return nil, nil
	}
}
