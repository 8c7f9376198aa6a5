package player

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/assets"
	"github.com/lunabay/chapter-engine/pkg/chapter"
	"github.com/lunabay/chapter-engine/pkg/state"
)

// Processor interprets one effect list at a time against the state and
// asset managers and the presentation boundary.
//
// Lists execute strictly sequentially in declaration order. At most one
// flow-control effect takes effect per Execute call; once one fires, the
// remainder of the list is never executed. Execute refuses re-entrant
// calls, so two effect lists can never run concurrently against the same
// progress record.
type Processor struct {
	state       *state.Manager
	assets      *assets.Manager
	presenter   *Presenter
	checkpoints Checkpointer
	attemptID   uuid.UUID
	log         *slog.Logger

	executing atomic.Bool

	// onFlow is invoked after a flow-control effect has updated the cursor
	// (or requested chapter end). The executing flag is already cleared so
	// the follow-up node is never blocked by stale processing state.
	onFlow func(ctx context.Context, target string, ended bool)
}

// NewProcessor builds a processor over the given managers.
func NewProcessor(sm *state.Manager, am *assets.Manager, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{state: sm, assets: am, log: log}
}

// SetPresenter registers the presentation callbacks. Must be called before
// effects that need them execute; missing handlers degrade to instant
// completion.
func (p *Processor) SetPresenter(presenter *Presenter) {
	p.presenter = presenter
}

// SetCheckpointer registers the sink for bookmark snapshots under the
// given attempt id.
func (p *Processor) SetCheckpointer(c Checkpointer, attemptID uuid.UUID) {
	p.checkpoints = c
	p.attemptID = attemptID
}

// Execute runs an effect list. It returns early (nil) when a flow-control
// effect fires, and returns the context error if the context is cancelled
// between effects. A call made while another list is executing is refused
// and logged.
func (p *Processor) Execute(ctx context.Context, effects []chapter.Effect) error {
	if !p.executing.CompareAndSwap(false, true) {
		p.log.Warn("effect list already executing, refusing re-entrant call")
		return nil
	}
	defer p.executing.Store(false)

	for _, effect := range effects {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Guards are re-evaluated at the moment each effect is reached.
		if len(effect.When) > 0 && !p.state.EvaluateConditions(effect.When) {
			continue
		}
		if halt := p.processEffect(ctx, effect); halt {
			return nil
		}
	}
	return nil
}

// IsExecuting reports whether an effect list is currently running.
func (p *Processor) IsExecuting() bool {
	return p.executing.Load()
}

// Stop is an emergency abort for teardown: it clears the processing flag
// without completing in-flight handlers. Resuming after Stop is undefined.
func (p *Processor) Stop() {
	p.executing.Store(false)
}

// processEffect runs a single effect. It returns true when the effect was
// flow control, meaning the remainder of the current list is dead.
func (p *Processor) processEffect(ctx context.Context, effect chapter.Effect) bool {
	switch args := effect.Args.(type) {

	// Instant state mutations.
	case chapter.SetArgs:
		p.state.SetVariable(args.Var, args.Value)
	case chapter.IncArgs:
		p.state.IncrementVariable(args.Var, amountOrOne(args.Value))
	case chapter.DecArgs:
		p.state.DecrementVariable(args.Var, amountOrOne(args.Value))

	// Fire-and-forget side effects.
	case chapter.BookmarkArgs:
		p.bookmark(ctx, args.Label)
	case chapter.SfxArgs:
		p.assets.PlaySound(args.SrcKey)
	case chapter.VfxArgs:
		if p.presenter != nil && p.presenter.Vfx != nil {
			p.presenter.Vfx(args.Type)
		} else {
			p.log.Debug("vfx effect with no handler", "type", args.Type)
		}

	// Awaited presentation effects: block until the handler resolves.
	case chapter.DialogueArgs:
		if p.presenter == nil || p.presenter.Dialogue == nil {
			p.log.Warn("no dialogue handler registered, continuing", "character", args.Character)
		} else if err := p.presenter.Dialogue(ctx, args.Character, args.Text); err != nil {
			p.log.Warn("dialogue handler failed", "character", args.Character, "error", err)
		}
	case chapter.NarrationArgs:
		if p.presenter == nil || p.presenter.Narration == nil {
			p.log.Warn("no narration handler registered, continuing")
		} else if err := p.presenter.Narration(ctx, args.Text); err != nil {
			p.log.Warn("narration handler failed", "error", err)
		}
	case chapter.BackgroundArgs:
		if p.presenter == nil || p.presenter.Background == nil {
			p.log.Warn("no background handler registered, continuing", "imageKey", args.ImageKey)
		} else if err := p.presenter.Background(ctx, args.ImageKey, args.Transition); err != nil {
			p.log.Warn("background handler failed", "imageKey", args.ImageKey, "error", err)
		}
	case chapter.CharacterArgs:
		action := CharacterAction{
			Character: args.Character,
			Action:    args.Action,
			Position:  args.Position,
			Emotion:   args.Emotion,
			Outfit:    args.Outfit,
		}
		if p.presenter == nil || p.presenter.Character == nil {
			p.log.Warn("no character handler registered, continuing", "character", args.Character)
		} else if err := p.presenter.Character(ctx, action); err != nil {
			p.log.Warn("character handler failed", "character", args.Character, "error", err)
		}
	case chapter.ShowCGArgs:
		if p.presenter == nil || p.presenter.ShowCG == nil {
			p.log.Warn("no showCG handler registered, continuing", "imageKey", args.ImageKey)
		} else if err := p.presenter.ShowCG(ctx, args.ImageKey); err != nil {
			p.log.Warn("showCG handler failed", "imageKey", args.ImageKey, "error", err)
		}

	// Audio control: playback itself is fire-and-forget inside the asset
	// manager; failures never stop the list.
	case chapter.MusicArgs:
		switch args.Action {
		case "play":
			loop := true
			if args.Loop != nil {
				loop = *args.Loop
			}
			p.assets.PlayMusic(args.SrcKey, loop)
		case "stop":
			p.assets.StopMusic(args.SrcKey)
		default:
			p.log.Warn("unknown music action", "action", args.Action, "srcKey", args.SrcKey)
		}

	// Flow control: update the cursor, halt the list, signal the
	// orchestrator without artificial delay.
	case chapter.GotoArgs:
		p.state.SetCurrentNode(args.Target)
		p.finishFlow(ctx, args.Target, false)
		return true
	case chapter.BranchArgs:
		target := p.state.EvaluateBranch(args)
		p.state.SetCurrentNode(target)
		p.finishFlow(ctx, target, false)
		return true
	case chapter.EndChapterArgs:
		p.finishFlow(ctx, "", true)
		return true

	default:
		p.log.Warn("unknown effect operation, skipping", "op", string(effect.Op))
	}
	return false
}

// finishFlow clears the executing flag before signaling so that processing
// the follow-up node is never blocked by stale processing state.
func (p *Processor) finishFlow(ctx context.Context, target string, ended bool) {
	p.executing.Store(false)
	if p.onFlow != nil {
		p.onFlow(ctx, target, ended)
	}
}

// bookmark snapshots the progress record and hands it to the checkpoint
// sink without blocking the effect list.
func (p *Processor) bookmark(ctx context.Context, label string) {
	if p.checkpoints == nil {
		p.log.Debug("bookmark effect with no checkpoint sink", "label", label)
		return
	}
	snapshot := p.state.GetProgress()
	attemptID := p.attemptID
	sink := p.checkpoints
	logger := p.log
	go func() {
		if err := sink.SaveProgress(context.WithoutCancel(ctx), attemptID, &snapshot); err != nil {
			logger.Warn("progress checkpoint failed", "attempt_id", attemptID, "error", err)
		}
	}()
}

func amountOrOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
