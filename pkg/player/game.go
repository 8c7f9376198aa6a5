package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/assets"
	"github.com/lunabay/chapter-engine/pkg/chapter"
	"github.com/lunabay/chapter-engine/pkg/state"
)

// State is the chapter lifecycle state.
type State string

const (
	StateLoading State = "LOADING"
	StatePlaying State = "PLAYING"
	StatePaused  State = "PAUSED"
	StateEnded   State = "ENDED"
)

// DefaultCurrency is the currency debited when a costed choice names none.
const DefaultCurrency = "diamonds"

// Game orchestrates one chapter attempt: it loads the chapter document,
// waits for asset readiness, walks the node graph feeding effect lists to
// the processor, publishes choices annotated with affordability, and
// resolves choice selection back into effect execution.
//
// Node transitions requested while a node is still being processed are not
// executed immediately; they land in a single pending slot (last-requested
// wins) drained after the in-progress call unwinds, so no node is ever
// processed twice concurrently.
type Game struct {
	mu      sync.Mutex
	current State
	doc     *chapter.Chapter

	attemptID uuid.UUID
	stateMgr  *state.Manager
	assetMgr  *assets.Manager
	processor *Processor
	presenter *Presenter
	log       *slog.Logger

	processing  bool
	pendingNode string
	hasPending  bool

	lastErr   error
	listeners map[int]func(State)
	nextID    int
}

// NewGame wires a fresh engine: a state manager seeded with the default
// variables, an asset manager over the given resolver, and an effects
// processor bound to both.
func NewGame(resolver assets.Resolver, log *slog.Logger) *Game {
	if log == nil {
		log = slog.Default()
	}

	sm := state.NewManager(state.PlayerProgress{}, log)
	am := assets.NewManager(resolver, log)

	g := &Game{
		current:   StateLoading,
		stateMgr:  sm,
		assetMgr:  am,
		log:       log,
		listeners: make(map[int]func(State)),
	}
	g.processor = NewProcessor(sm, am, log)
	g.processor.onFlow = g.handleTransition

	am.OnProgress(func(progress float64) {
		g.mu.Lock()
		presenter := g.presenter
		g.mu.Unlock()
		if presenter != nil && presenter.LoadingProgress != nil {
			presenter.LoadingProgress(progress)
		}
	})

	return g
}

// SetPresenter registers the presentation callbacks on the game and its
// processor. Call it before InitializeChapter.
func (g *Game) SetPresenter(p *Presenter) {
	g.mu.Lock()
	g.presenter = p
	g.mu.Unlock()
	g.processor.SetPresenter(p)
}

// SetCheckpointer registers the sink that receives progress snapshots when
// bookmark effects fire.
func (g *Game) SetCheckpointer(c Checkpointer) {
	g.mu.Lock()
	attemptID := g.attemptID
	g.mu.Unlock()
	g.processor.SetCheckpointer(c, attemptID)
}

// OnStateChange registers a lifecycle listener. The returned func
// unsubscribes.
func (g *Game) OnStateChange(listener func(State)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = listener
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// GetState returns the current lifecycle state.
func (g *Game) GetState() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Err returns the error recorded by a malformed-reference failure, or nil.
func (g *Game) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// StateManager exposes the state manager for external reads (UI meta
// panels, tests).
func (g *Game) StateManager() *state.Manager { return g.stateMgr }

// AssetManager exposes the asset manager for external reads.
func (g *Game) AssetManager() *assets.Manager { return g.assetMgr }

// Processor exposes the effects processor.
func (g *Game) Processor() *Processor { return g.processor }

func (g *Game) setState(next State) {
	g.mu.Lock()
	if g.current == next {
		g.mu.Unlock()
		return
	}
	g.current = next
	fns := make([]func(State), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	presenter := g.presenter
	g.mu.Unlock()

	g.log.Debug("game state changed", "state", string(next))
	for _, fn := range fns {
		fn(next)
	}
	if presenter != nil && presenter.StateChange != nil {
		presenter.StateChange(next)
	}
}

// InitializeChapter starts a chapter attempt from the given progress
// record. It validates the document, loads its asset manifest (blocking
// until every entry has been attempted), then transitions to PLAYING and
// processes the first node. It returns only load-time failures; playback
// errors are downgraded to diagnostics.
func (g *Game) InitializeChapter(ctx context.Context, progress state.PlayerProgress, doc *chapter.Chapter) error {
	if doc == nil {
		return errors.New("chapter data is required")
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid chapter: %w", err)
	}

	g.setState(StateLoading)
	g.stateMgr.UpdateProgress(progress)

	g.mu.Lock()
	g.doc = doc
	g.attemptID = uuid.New()
	g.lastErr = nil
	g.hasPending = false
	g.pendingNode = ""
	checkpoints := g.processor.checkpoints
	attemptID := g.attemptID
	g.mu.Unlock()
	if checkpoints != nil {
		g.processor.SetCheckpointer(checkpoints, attemptID)
	}

	if progress.ResumeNodeID == "" {
		g.stateMgr.SetCurrentNode(doc.StartNodeID)
	}

	if err := g.assetMgr.LoadAssets(ctx, doc.AssetManifest); err != nil {
		return fmt.Errorf("failed to load chapter assets: %w", err)
	}

	g.setState(StatePlaying)
	g.processCurrentNode(ctx)
	return nil
}

// LoadChapterFromData starts a fresh attempt at the chapter's start node.
func (g *Game) LoadChapterFromData(ctx context.Context, doc *chapter.Chapter, storyID, chapterID string) error {
	if doc == nil {
		return errors.New("chapter data is required")
	}
	progress := state.PlayerProgress{
		StoryID:      storyID,
		ChapterID:    chapterID,
		ResumeNodeID: doc.StartNodeID,
		Variables:    make(map[string]any),
	}
	return g.InitializeChapter(ctx, progress, doc)
}

// handleTransition is the processor's flow-control signal. A transition
// arriving while a node is still processing is stashed in the pending slot
// (overwriting any earlier request) and drained once the in-progress call
// unwinds; otherwise the next node is processed immediately.
func (g *Game) handleTransition(ctx context.Context, target string, ended bool) {
	if ended {
		g.setState(StateEnded)
		return
	}

	g.mu.Lock()
	if g.processing {
		g.log.Debug("node change requested during processing, deferring", "target", target)
		g.pendingNode = target
		g.hasPending = true
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.processCurrentNode(ctx)
}

// processCurrentNode runs the node-processing cycle for the cursor's node,
// then drains at most one deferred transition per iteration until none are
// pending.
func (g *Game) processCurrentNode(ctx context.Context) {
	for {
		g.mu.Lock()
		if g.processing || g.doc == nil || g.current != StatePlaying {
			g.mu.Unlock()
			return
		}
		g.processing = true
		g.hasPending = false
		g.pendingNode = ""
		doc := g.doc
		g.mu.Unlock()

		g.runNode(ctx, doc)

		g.mu.Lock()
		g.processing = false
		rerun := g.hasPending
		target := g.pendingNode
		g.hasPending = false
		g.pendingNode = ""
		g.mu.Unlock()

		if !rerun {
			return
		}
		g.log.Debug("draining deferred node change", "target", target)
	}
}

// runNode executes one node: hide stale choices, run onEnter effects, and
// publish choices unless a flow-control effect already moved the cursor.
func (g *Game) runNode(ctx context.Context, doc *chapter.Chapter) {
	nodeID := g.stateMgr.GetCurrentNode()
	node, ok := doc.Nodes[nodeID]
	if !ok {
		g.failNode(nodeID)
		return
	}

	g.hideChoices()

	if len(node.OnEnter) > 0 {
		if err := g.processor.Execute(ctx, node.OnEnter); err != nil {
			g.log.Warn("effect execution aborted", "node", nodeID, "error", err)
			return
		}
	}

	// A flow-control effect moved the cursor mid-list; the deferred drain
	// owns the next node, and the original node's choices never show.
	if g.stateMgr.GetCurrentNode() != nodeID {
		return
	}

	if len(node.Choices) > 0 {
		g.showChoices(node.Choices)
	}
}

// failNode handles a runtime dangling node reference: record it, surface
// it, and end the attempt rather than leaving the engine suspended.
func (g *Game) failNode(nodeID string) {
	err := fmt.Errorf("node %q not found in chapter", nodeID)
	g.log.Error("malformed node reference", "node", nodeID)
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
	g.setState(StateEnded)
}

func (g *Game) showChoices(choices []chapter.Choice) {
	annotated := make([]AnnotatedChoice, 0, len(choices))
	for _, c := range choices {
		afford := true
		if c.Cost > 0 {
			afford = g.stateMgr.CanAfford(c.Cost, currencyOrDefault(c.CostType))
		}
		annotated = append(annotated, AnnotatedChoice{Choice: c, CanAfford: afford})
	}

	g.mu.Lock()
	presenter := g.presenter
	g.mu.Unlock()
	if presenter != nil && presenter.ShowChoices != nil {
		presenter.ShowChoices(annotated)
	}
}

func (g *Game) hideChoices() {
	g.mu.Lock()
	presenter := g.presenter
	g.mu.Unlock()
	if presenter != nil && presenter.HideChoices != nil {
		presenter.HideChoices()
	}
}

// SelectChoice resolves a player selection. Selections are rejected
// silently (logged, no state change) outside PLAYING, for unknown ids, or
// when the re-checked balance cannot cover the cost. On success the
// currency is debited, the published choices are hidden, and the choice's
// effect list executes under the same flow-control semantics as onEnter
// lists.
func (g *Game) SelectChoice(ctx context.Context, choiceID string) {
	g.mu.Lock()
	st := g.current
	doc := g.doc
	g.mu.Unlock()

	if st != StatePlaying || doc == nil {
		g.log.Warn("choice selection ignored", "choice", choiceID, "state", string(st))
		return
	}

	nodeID := g.stateMgr.GetCurrentNode()
	node, ok := doc.Nodes[nodeID]
	if !ok || len(node.Choices) == 0 {
		g.log.Warn("current node has no choices", "choice", choiceID, "node", nodeID)
		return
	}

	var selected *chapter.Choice
	for i := range node.Choices {
		if node.Choices[i].ID == choiceID {
			selected = &node.Choices[i]
			break
		}
	}
	if selected == nil {
		g.log.Warn("choice not found", "choice", choiceID, "node", nodeID)
		return
	}

	if selected.Cost > 0 {
		// Affordability is re-checked here, not trusted from the snapshot
		// published with the choices.
		if !g.stateMgr.SpendCurrency(selected.Cost, currencyOrDefault(selected.CostType)) {
			g.log.Warn("choice unaffordable", "choice", choiceID, "cost", selected.Cost, "costType", selected.CostType)
			return
		}
	}

	g.hideChoices()

	if len(selected.Effects) > 0 {
		if err := g.processor.Execute(ctx, selected.Effects); err != nil {
			g.log.Warn("choice effect execution aborted", "choice", choiceID, "error", err)
		}
	}
}

// Pause suspends the lifecycle state flag. In-flight effect execution is
// not interrupted; pause is an advisory marker.
func (g *Game) Pause() {
	g.mu.Lock()
	playing := g.current == StatePlaying
	g.mu.Unlock()
	if playing {
		g.setState(StatePaused)
	}
}

// Resume returns a paused attempt to PLAYING.
func (g *Game) Resume() {
	g.mu.Lock()
	paused := g.current == StatePaused
	g.mu.Unlock()
	if paused {
		g.setState(StatePlaying)
	}
}

// EndChapter terminates the attempt.
func (g *Game) EndChapter() {
	g.setState(StateEnded)
}

// Cleanup aborts any in-flight execution, releases cached assets and
// resets the game to LOADING with no chapter bound.
func (g *Game) Cleanup() {
	g.processor.Stop()
	g.assetMgr.Cleanup()
	g.setState(StateLoading)
	g.mu.Lock()
	g.doc = nil
	g.hasPending = false
	g.pendingNode = ""
	g.mu.Unlock()
}

func currencyOrDefault(costType string) string {
	if costType == "" {
		return DefaultCurrency
	}
	return costType
}
