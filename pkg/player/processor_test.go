package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/assets"
	"github.com/lunabay/chapter-engine/pkg/chapter"
	"github.com/lunabay/chapter-engine/pkg/state"
)

// recordingPresenter captures every presentation call in order and resolves
// awaited effects immediately.
type recordingPresenter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPresenter) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingPresenter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingPresenter) presenter() *Presenter {
	return &Presenter{
		Dialogue: func(ctx context.Context, character, text string) error {
			r.record("dialogue:" + character + ":" + text)
			return nil
		},
		Narration: func(ctx context.Context, text string) error {
			r.record("narration:" + text)
			return nil
		},
		Background: func(ctx context.Context, imageKey, transition string) error {
			r.record("bg:" + imageKey)
			return nil
		},
		Character: func(ctx context.Context, action CharacterAction) error {
			r.record("character:" + action.Character + ":" + action.Action)
			return nil
		},
		ShowCG: func(ctx context.Context, imageKey string) error {
			r.record("cg:" + imageKey)
			return nil
		},
		Vfx: func(kind string) {
			r.record("vfx:" + kind)
		},
		ShowChoices: func(choices []AnnotatedChoice) {
			r.record("showChoices")
		},
		HideChoices: func() {
			r.record("hideChoices")
		},
	}
}

// memoryCheckpointer records bookmark snapshots for assertions.
type memoryCheckpointer struct {
	mu    sync.Mutex
	saved []state.PlayerProgress
	done  chan struct{}
}

func newMemoryCheckpointer() *memoryCheckpointer {
	return &memoryCheckpointer{done: make(chan struct{}, 16)}
}

func (c *memoryCheckpointer) SaveProgress(ctx context.Context, attemptID uuid.UUID, progress *state.PlayerProgress) error {
	c.mu.Lock()
	c.saved = append(c.saved, progress.Clone())
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func (c *memoryCheckpointer) wait(t *testing.T) state.PlayerProgress {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for checkpoint")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[len(c.saved)-1]
}

func newTestProcessor(p *Presenter) (*Processor, *state.Manager) {
	sm := state.NewManager(state.PlayerProgress{ResumeNodeID: "intro"}, nil)
	am := assets.NewManager(nil, nil)
	proc := NewProcessor(sm, am, nil)
	proc.SetPresenter(p)
	return proc, sm
}

func TestProcessor_ExecutesInOrder(t *testing.T) {
	rec := &recordingPresenter{}
	proc, sm := newTestProcessor(rec.presenter())

	effects := []chapter.Effect{
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "route", Value: "cafe"}},
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "one"}},
		{Op: chapter.OpDialogue, Args: chapter.DialogueArgs{Character: "mira", Text: "two"}},
		{Op: chapter.OpVfx, Args: chapter.VfxArgs{Type: "shake"}},
	}

	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{"narration:one", "dialogue:mira:two", "vfx:shake"}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if v := sm.GetVariable("route"); v != "cafe" {
		t.Errorf("route = %v, want cafe", v)
	}
}

func TestProcessor_FlowControlTruncatesList(t *testing.T) {
	rec := &recordingPresenter{}
	proc, sm := newTestProcessor(rec.presenter())

	var flowTarget string
	var flowEnded bool
	var flowSawExecuting bool
	proc.onFlow = func(ctx context.Context, target string, ended bool) {
		flowTarget = target
		flowEnded = ended
		flowSawExecuting = proc.IsExecuting()
	}

	effects := []chapter.Effect{
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "before"}},
		{Op: chapter.OpGoto, Args: chapter.GotoArgs{Target: "order"}},
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "after"}},
	}

	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "narration:before" {
		t.Errorf("events = %v, effects after flow control must never run", got)
	}
	if flowTarget != "order" || flowEnded {
		t.Errorf("flow signal = (%q, %v), want (order, false)", flowTarget, flowEnded)
	}
	if sm.GetCurrentNode() != "order" {
		t.Errorf("cursor = %q, want order", sm.GetCurrentNode())
	}
	if flowSawExecuting {
		t.Error("executing flag must be clear before the flow signal fires")
	}
	if proc.IsExecuting() {
		t.Error("executing flag must be clear after flow control")
	}
}

func TestProcessor_BranchSelectsTarget(t *testing.T) {
	proc, sm := newTestProcessor(nil)
	sm.SetVariable("Confidence", float64(3))

	var flowTarget string
	proc.onFlow = func(ctx context.Context, target string, ended bool) {
		flowTarget = target
	}

	effects := []chapter.Effect{
		{Op: chapter.OpBranch, Args: chapter.BranchArgs{
			Conditions: []chapter.BranchArm{
				{
					When:   []chapter.Condition{{Var: "Confidence", Op: chapter.CompareGte, Value: float64(5)}},
					Target: "bold",
				},
				{
					When:   []chapter.Condition{{Var: "Confidence", Op: chapter.CompareGte, Value: float64(2)}},
					Target: "steady",
				},
			},
			Default: "quiet",
		}},
	}

	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if flowTarget != "steady" {
		t.Errorf("flow target = %q, want steady", flowTarget)
	}
	if sm.GetCurrentNode() != "steady" {
		t.Errorf("cursor = %q, want steady", sm.GetCurrentNode())
	}
}

func TestProcessor_EndChapterSignalsEnded(t *testing.T) {
	proc, _ := newTestProcessor(nil)

	var flowEnded bool
	proc.onFlow = func(ctx context.Context, target string, ended bool) {
		flowEnded = ended
	}

	effects := []chapter.Effect{
		{Op: chapter.OpEndChapter, Args: chapter.EndChapterArgs{}},
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "dead", Value: true}},
	}
	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !flowEnded {
		t.Error("expected ended signal")
	}
}

func TestProcessor_WhenGuardSkips(t *testing.T) {
	rec := &recordingPresenter{}
	proc, sm := newTestProcessor(rec.presenter())

	guard := []chapter.Condition{{Var: "met_theo", Op: chapter.CompareEq, Value: true}}
	effects := []chapter.Effect{
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "guarded"}, When: guard},
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "met_theo", Value: true}},
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "now visible"}, When: guard},
	}

	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// The first guarded effect is skipped; the same guard passes once an
	// earlier effect in the list has flipped the variable.
	got := rec.snapshot()
	if len(got) != 1 || got[0] != "narration:now visible" {
		t.Errorf("events = %v, want only the post-set narration", got)
	}
	if sm.GetVariable("met_theo") != true {
		t.Error("set effect did not run")
	}
}

func TestProcessor_RefusesReentrantExecute(t *testing.T) {
	var proc *Processor
	var nested error
	nestedRan := false

	rec := &Presenter{
		Narration: func(ctx context.Context, text string) error {
			// Re-entrant call from inside a handler must be refused without
			// touching the in-flight list.
			nested = proc.Execute(ctx, []chapter.Effect{
				{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "nested", Value: true}},
			})
			nestedRan = true
			return nil
		},
	}
	var sm *state.Manager
	proc, sm = newTestProcessor(rec)

	effects := []chapter.Effect{
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "outer"}},
	}
	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !nestedRan {
		t.Fatal("nested call never happened")
	}
	if nested != nil {
		t.Errorf("re-entrant Execute returned %v, want nil refusal", nested)
	}
	if sm.GetVariable("nested") != nil {
		t.Error("refused list must not execute any effects")
	}
	if proc.IsExecuting() {
		t.Error("executing flag must be clear after the outer call")
	}
}

func TestProcessor_IncDecDefaults(t *testing.T) {
	proc, sm := newTestProcessor(nil)

	effects := []chapter.Effect{
		{Op: chapter.OpInc, Args: chapter.IncArgs{Var: "Empathy"}},
		{Op: chapter.OpInc, Args: chapter.IncArgs{Var: "Empathy", Value: 3}},
		{Op: chapter.OpDec, Args: chapter.DecArgs{Var: "Empathy"}},
		{Op: chapter.OpDec, Args: chapter.DecArgs{Var: "tickets", Value: 99}},
	}
	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := sm.GetVariable("Empathy"); got != float64(3) {
		t.Errorf("Empathy = %v, want 3", got)
	}
	if got := sm.GetVariable("tickets"); got != float64(0) {
		t.Errorf("tickets = %v, want floor 0", got)
	}
}

func TestProcessor_NilHandlersDoNotBlock(t *testing.T) {
	// No presenter at all: awaited effects degrade to instant completion.
	proc, _ := newTestProcessor(nil)

	effects := []chapter.Effect{
		{Op: chapter.OpDialogue, Args: chapter.DialogueArgs{Character: "mira", Text: "hi"}},
		{Op: chapter.OpNarration, Args: chapter.NarrationArgs{Text: "rain"}},
		{Op: chapter.OpBackground, Args: chapter.BackgroundArgs{ImageKey: "cafe_day"}},
		{Op: chapter.OpCharacter, Args: chapter.CharacterArgs{Character: "mira", Action: "show"}},
		{Op: chapter.OpShowCG, Args: chapter.ShowCGArgs{ImageKey: "cg"}},
		{Op: chapter.OpVfx, Args: chapter.VfxArgs{Type: "flash"}},
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "done", Value: true}},
	}

	done := make(chan error, 1)
	go func() { done <- proc.Execute(context.Background(), effects) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute blocked on missing handlers")
	}
}

func TestProcessor_UnknownOpSkipped(t *testing.T) {
	proc, sm := newTestProcessor(nil)

	effects := []chapter.Effect{
		{Op: chapter.Op("teleport"), Args: nil},
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "after", Value: true}},
	}
	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sm.GetVariable("after") != true {
		t.Error("effects after an unknown op must still run")
	}
}

func TestProcessor_ContextCancelled(t *testing.T) {
	proc, sm := newTestProcessor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	effects := []chapter.Effect{
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "never", Value: true}},
	}
	if err := proc.Execute(ctx, effects); err == nil {
		t.Fatal("expected context error")
	}
	if sm.GetVariable("never") != nil {
		t.Error("no effect may run after cancellation")
	}
}

func TestProcessor_BookmarkCheckpoints(t *testing.T) {
	proc, sm := newTestProcessor(nil)
	sink := newMemoryCheckpointer()
	attemptID := uuid.New()
	proc.SetCheckpointer(sink, attemptID)

	effects := []chapter.Effect{
		{Op: chapter.OpSet, Args: chapter.SetArgs{Var: "route", Value: "rooftop"}},
		{Op: chapter.OpBookmark, Args: chapter.BookmarkArgs{Label: "act_two"}},
	}
	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	saved := sink.wait(t)
	if saved.Variables["route"] != "rooftop" {
		t.Errorf("checkpoint route = %v, want rooftop", saved.Variables["route"])
	}
	if saved.ResumeNodeID != "intro" {
		t.Errorf("checkpoint cursor = %q, want intro", saved.ResumeNodeID)
	}

	// Later mutations must not leak into the saved snapshot.
	sm.SetVariable("route", "cafe")
	sink.mu.Lock()
	got := sink.saved[0].Variables["route"]
	sink.mu.Unlock()
	if got != "rooftop" {
		t.Errorf("snapshot mutated after save: route = %v", got)
	}
}

func TestProcessor_BookmarkWithoutSink(t *testing.T) {
	proc, _ := newTestProcessor(nil)

	effects := []chapter.Effect{
		{Op: chapter.OpBookmark, Args: chapter.BookmarkArgs{}},
	}
	if err := proc.Execute(context.Background(), effects); err != nil {
		t.Fatalf("bookmark without sink must be a no-op: %v", err)
	}
}
