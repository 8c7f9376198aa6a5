package state

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/lunabay/chapter-engine/pkg/chapter"
)

// Manager is the single source of truth for PlayerProgress. All variable
// and cursor access goes through it, and every mutation notifies
// subscribers synchronously before the mutating call returns. The Manager
// does no I/O.
type Manager struct {
	mu        sync.Mutex
	progress  PlayerProgress
	listeners map[int]func()
	nextID    int
	log       *slog.Logger
}

// NewManager wraps an initial progress record, filling in any missing
// default stat and currency variables.
func NewManager(initial PlayerProgress, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		progress:  initial,
		listeners: make(map[int]func()),
		log:       log,
	}
	m.ensureDefaults()
	return m
}

// ensureDefaults fills missing default variables. Caller holds mu.
func (m *Manager) ensureDefaults() {
	if m.progress.Variables == nil {
		m.progress.Variables = make(map[string]any)
	}
	for key, value := range DefaultVariables() {
		if _, ok := m.progress.Variables[key]; !ok {
			m.progress.Variables[key] = value
		}
	}
}

// Subscribe registers a listener invoked synchronously after every
// mutation. The returned func removes the subscription.
func (m *Manager) Subscribe(listener func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// notify invokes all subscribers outside the lock so that a listener may
// call back into the Manager.
func (m *Manager) notify() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// GetProgress returns a deep copy of the current progress record.
func (m *Manager) GetProgress() PlayerProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.Clone()
}

// UpdateProgress replaces the progress record in place, re-applying the
// fill-missing variable defaults. Used when (re)initializing a chapter.
func (m *Manager) UpdateProgress(progress PlayerProgress) {
	m.mu.Lock()
	m.progress = progress.Clone()
	m.ensureDefaults()
	m.mu.Unlock()
	m.notify()
}

// GetVariable returns the current value of a variable, or nil if unset.
func (m *Manager) GetVariable(name string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.Variables[name]
}

// SetVariable assigns a variable, creating it on first write.
func (m *Manager) SetVariable(name string, value any) {
	m.mu.Lock()
	m.progress.Variables[name] = value
	m.mu.Unlock()
	m.notify()
}

// IncrementVariable adds amount to a numeric variable. Non-numeric current
// values count as zero.
func (m *Manager) IncrementVariable(name string, amount float64) {
	m.mu.Lock()
	current, _ := asNumber(m.progress.Variables[name])
	m.progress.Variables[name] = current + amount
	m.mu.Unlock()
	m.notify()
}

// DecrementVariable subtracts amount from a numeric variable, flooring at
// zero. Currency and stat values never go negative through this path.
func (m *Manager) DecrementVariable(name string, amount float64) {
	m.mu.Lock()
	current, _ := asNumber(m.progress.Variables[name])
	next := current - amount
	if next < 0 {
		next = 0
	}
	m.progress.Variables[name] = next
	m.mu.Unlock()
	m.notify()
}

// GetCurrentNode returns the narrative cursor.
func (m *Manager) GetCurrentNode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.ResumeNodeID
}

// SetCurrentNode moves the narrative cursor. This is the only write path
// for the cursor.
func (m *Manager) SetCurrentNode(nodeID string) {
	m.mu.Lock()
	from := m.progress.ResumeNodeID
	m.progress.ResumeNodeID = nodeID
	m.mu.Unlock()
	m.log.Debug("current node changed", "from", from, "to", nodeID)
	m.notify()
}

// SetCustomization stores paper-doll data for a character.
func (m *Manager) SetCustomization(characterKey string, data map[string]string) {
	m.mu.Lock()
	if m.progress.Customization == nil {
		m.progress.Customization = make(map[string]map[string]string)
	}
	m.progress.Customization[characterKey] = data
	m.mu.Unlock()
	m.notify()
}

// GetCustomization returns paper-doll data for a character, or nil.
func (m *Manager) GetCustomization(characterKey string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.Customization[characterKey]
}

// EvaluateConditions reports whether every condition holds against the
// current variable state. Conditions are re-evaluated on every call, never
// cached. An unknown operator evaluates false and logs a diagnostic.
func (m *Manager) EvaluateConditions(conditions []chapter.Condition) bool {
	for _, c := range conditions {
		if !m.evaluateCondition(c) {
			return false
		}
	}
	return true
}

func (m *Manager) evaluateCondition(c chapter.Condition) bool {
	value := m.GetVariable(c.Var)

	switch c.Op {
	case chapter.CompareEq:
		return looseEqual(value, c.Value)
	case chapter.CompareNeq:
		return !looseEqual(value, c.Value)
	case chapter.CompareGt, chapter.CompareGte, chapter.CompareLt, chapter.CompareLte:
		a, aok := asNumber(value)
		b, bok := asNumber(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Op {
		case chapter.CompareGt:
			return a > b
		case chapter.CompareGte:
			return a >= b
		case chapter.CompareLt:
			return a < b
		default:
			return a <= b
		}
	default:
		m.log.Warn("unknown condition operator", "op", string(c.Op), "var", c.Var)
		return false
	}
}

// EvaluateBranch returns the target of the first arm whose conditions
// hold, the branch default if none match, or the current node when no
// default is given.
func (m *Manager) EvaluateBranch(args chapter.BranchArgs) string {
	for _, arm := range args.Conditions {
		if m.EvaluateConditions(arm.When) {
			return arm.Target
		}
	}
	if args.Default != "" {
		return args.Default
	}
	return m.GetCurrentNode()
}

// CanAfford reports whether the named currency balance covers cost.
func (m *Manager) CanAfford(cost int, costType string) bool {
	balance, _ := asNumber(m.GetVariable(costType))
	return balance >= float64(cost)
}

// SpendCurrency debits the named currency if affordable. It reports false
// and leaves state untouched when the balance is insufficient.
func (m *Manager) SpendCurrency(cost int, costType string) bool {
	m.mu.Lock()
	balance, _ := asNumber(m.progress.Variables[costType])
	if balance < float64(cost) {
		m.mu.Unlock()
		return false
	}
	m.progress.Variables[costType] = balance - float64(cost)
	m.mu.Unlock()
	m.notify()
	return true
}

// asNumber coerces a variable or literal to float64 for arithmetic and
// ordering comparisons.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// looseEqual compares two values, treating all numeric types as one
// domain. Uncomparable values (slices, maps) never match.
func looseEqual(a, b any) bool {
	if an, aok := asNumber(a); aok {
		bn, bok := asNumber(b)
		return bok && an == bn
	}
	if a != nil && !reflect.TypeOf(a).Comparable() {
		return false
	}
	if b != nil && !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}
