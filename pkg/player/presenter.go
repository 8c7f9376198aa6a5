package player

import (
	"context"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/chapter"
	"github.com/lunabay/chapter-engine/pkg/state"
)

// CharacterAction is the payload of a character effect handed to the
// presentation layer.
type CharacterAction struct {
	Character string
	Action    string // "show", "hide" or "update"
	Position  *chapter.Position
	Emotion   string
	Outfit    string
}

// AnnotatedChoice is a chapter choice plus its affordability at publish
// time. Unaffordable choices are published disabled, not hidden;
// affordability is re-checked at selection time.
type AnnotatedChoice struct {
	chapter.Choice
	CanAfford bool
}

// Presenter is the presentation callback contract, registered before
// chapter start. The awaited handlers (Dialogue through ShowCG) block
// until the player or the presentation layer acknowledges; a nil handler
// logs a warning and is treated as instantly complete so an effect list
// can never deadlock on a missing registration.
type Presenter struct {
	// Dialogue resolves when the player acknowledges the spoken line.
	Dialogue func(ctx context.Context, character, text string) error
	// Narration resolves when the player acknowledges the narrated line.
	Narration func(ctx context.Context, text string) error
	// Background resolves once the visual update is confirmed.
	Background func(ctx context.Context, imageKey, transition string) error
	// Character resolves once the stage update is confirmed.
	Character func(ctx context.Context, action CharacterAction) error
	// ShowCG resolves when the full-screen image is dismissed.
	ShowCG func(ctx context.Context, imageKey string) error

	// Vfx triggers a visual flourish, fire-and-forget.
	Vfx func(kind string)

	// ShowChoices and HideChoices are synchronous notifications.
	ShowChoices func(choices []AnnotatedChoice)
	HideChoices func()

	// StateChange and LoadingProgress are lifecycle notifications.
	StateChange     func(st State)
	LoadingProgress func(progress float64)
}

// Checkpointer receives progress snapshots when a bookmark effect fires.
// The engine calls it fire-and-forget; failures are logged, never
// propagated.
type Checkpointer interface {
	SaveProgress(ctx context.Context, attemptID uuid.UUID, progress *state.PlayerProgress) error
}
