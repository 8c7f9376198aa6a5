package assets

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lunabay/chapter-engine/pkg/chapter"
)

// NeutralEmotion is the canonical portrait fallback: when a requested
// emotion variant is unresolved, the same character and outfit under this
// emotion is tried before giving up.
const NeutralEmotion = "neutral"

// CharacterKey builds the composite cache key for a character image.
func CharacterKey(character, outfit, emotion string) string {
	return character + "_" + outfit + "_" + emotion
}

// Manager resolves manifest-declared asset keys into displayable and
// playable resources, tracks aggregate load progress, and mediates audio
// playback with an exclusive single-track music policy.
//
// Loading is best-effort: every resolution failure is logged and still
// counted as attempted, so progress always reaches 1.0 and the loading
// phase never hangs on a missing asset.
type Manager struct {
	mu        sync.Mutex
	resolver  Resolver
	log       *slog.Logger
	images    map[string]Image
	sounds    map[string]Sound
	total     int
	attempted int
	current   string // key of the single playing music track, "" when idle
	listeners map[int]func(float64)
	nextID    int
}

// NewManager creates a Manager over the given resolver. A nil resolver is
// allowed; every asset then resolves as not-found.
func NewManager(resolver Resolver, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		resolver:  resolver,
		log:       log,
		images:    make(map[string]Image),
		sounds:    make(map[string]Sound),
		listeners: make(map[int]func(float64)),
	}
}

// OnProgress registers a listener invoked with aggregate progress in
// [0.0, 1.0] after each asset settles. The returned func unsubscribes.
func (m *Manager) OnProgress(listener func(float64)) func() {
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

// notifyProgress reads progress under the lock and delivers it outside the
// lock so listeners may call back into the Manager.
func (m *Manager) notifyProgress() {
	m.mu.Lock()
	progress := m.progressLocked()
	fns := make([]func(float64), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(progress)
	}
}

func (m *Manager) progressLocked() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.attempted) / float64(m.total)
}

// LoadAssets attempts to resolve every entry in the manifest: background
// images, per-character per-emotion per-outfit images, and audio tracks.
// It returns once every entry has been attempted, success or failure, and
// forces a final 1.0 progress notification.
func (m *Manager) LoadAssets(ctx context.Context, manifest chapter.AssetManifest) error {
	m.mu.Lock()
	m.total = manifest.TotalAssets()
	m.attempted = 0
	m.mu.Unlock()

	for key, locator := range manifest.Images {
		m.loadImage(ctx, key, locator)
	}
	for characterKey, emotions := range manifest.Characters {
		for emotionKey, outfits := range emotions {
			for outfitKey, locator := range outfits {
				m.loadImage(ctx, CharacterKey(characterKey, outfitKey, emotionKey), locator)
			}
		}
	}
	for key, locator := range manifest.Audio {
		m.loadAudio(ctx, key, locator)
	}

	// Force completion even when individual assets failed, so the loading
	// screen can never get stuck short of 100%.
	m.mu.Lock()
	m.attempted = m.total
	m.mu.Unlock()
	m.notifyProgress()
	return nil
}

func (m *Manager) loadImage(ctx context.Context, key, locator string) {
	defer m.settle()

	m.mu.Lock()
	_, cached := m.images[key]
	resolver := m.resolver
	m.mu.Unlock()
	if cached {
		return
	}
	if resolver == nil {
		m.log.Warn("no resolver configured, image unresolved", "key", key)
		return
	}

	img, err := resolver.ResolveImage(ctx, key, locator)
	if err != nil || img == nil {
		m.log.Warn("image asset unresolved", "key", key, "locator", locator, "error", err)
		return
	}

	m.mu.Lock()
	m.images[key] = img
	m.mu.Unlock()
}

func (m *Manager) loadAudio(ctx context.Context, key, locator string) {
	defer m.settle()

	m.mu.Lock()
	_, cached := m.sounds[key]
	resolver := m.resolver
	m.mu.Unlock()
	if cached {
		return
	}
	if resolver == nil {
		m.log.Warn("no resolver configured, audio unresolved", "key", key)
		return
	}

	sound, err := resolver.ResolveAudio(ctx, key, locator)
	if err != nil || sound == nil {
		m.log.Warn("audio asset unresolved", "key", key, "locator", locator, "error", err)
		return
	}

	m.mu.Lock()
	m.sounds[key] = sound
	m.mu.Unlock()
}

// settle counts one attempted asset, success or failure, and publishes the
// new aggregate progress.
func (m *Manager) settle() {
	m.mu.Lock()
	if m.attempted < m.total {
		m.attempted++
	}
	m.mu.Unlock()
	m.notifyProgress()
}

// GetImage returns the cached resource for an exact key. Callers must
// treat a miss as a no-op render, never a crash.
func (m *Manager) GetImage(key string) (Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[key]
	return img, ok
}

// GetCharacterImage returns the portrait for a character, outfit and
// emotion, falling back to the neutral emotion variant so a missing
// expression never shows a blank portrait.
func (m *Manager) GetCharacterImage(character, outfit, emotion string) (Image, bool) {
	if img, ok := m.GetImage(CharacterKey(character, outfit, emotion)); ok {
		return img, true
	}
	if emotion != NeutralEmotion {
		return m.GetImage(CharacterKey(character, outfit, NeutralEmotion))
	}
	return nil, false
}

// GetSound returns the cached audio resource for a key.
func (m *Manager) GetSound(key string) (Sound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sound, ok := m.sounds[key]
	return sound, ok
}

// PlaySound plays a short effect, fire-and-forget. Failures are logged,
// never propagated.
func (m *Manager) PlaySound(key string) {
	sound, ok := m.GetSound(key)
	if !ok {
		m.log.Warn("sound not found", "key", key)
		return
	}
	if err := sound.Play(false); err != nil {
		m.log.Warn("failed to play sound", "key", key, "error", err)
	}
}

// PlayMusic starts a track, stopping whatever track this manager was
// previously playing. At most one music track is ever current.
func (m *Manager) PlayMusic(key string, loop bool) {
	m.mu.Lock()
	previous := m.current
	m.mu.Unlock()
	if previous != "" && previous != key {
		m.StopMusic(previous)
	}

	sound, ok := m.GetSound(key)
	if !ok {
		m.log.Warn("music not found", "key", key)
		return
	}
	if err := sound.Play(loop); err != nil {
		m.log.Warn("failed to play music", "key", key, "error", err)
		return
	}

	m.mu.Lock()
	m.current = key
	m.mu.Unlock()
	m.log.Debug("music started", "key", key, "loop", loop)
}

// StopMusic stops a track and clears the current-track marker if it
// matches.
func (m *Manager) StopMusic(key string) {
	if sound, ok := m.GetSound(key); ok {
		if err := sound.Stop(); err != nil {
			m.log.Warn("failed to stop music", "key", key, "error", err)
		}
	}

	m.mu.Lock()
	if m.current == key {
		m.current = ""
	}
	m.mu.Unlock()
}

// StopAllMusic stops whatever track is currently playing.
func (m *Manager) StopAllMusic() {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current != "" {
		m.StopMusic(current)
	}
}

// GetProgress returns the aggregate loading progress in [0.0, 1.0].
func (m *Manager) GetProgress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressLocked()
}

// IsLoaded reports whether every manifest entry has been attempted.
func (m *Manager) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total > 0 && m.attempted >= m.total
}

// Cleanup releases all cached resources and resets the counters. It is
// idempotent.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	sounds := m.sounds
	m.images = make(map[string]Image)
	m.sounds = make(map[string]Sound)
	m.total = 0
	m.attempted = 0
	m.current = ""
	m.mu.Unlock()

	for key, sound := range sounds {
		if err := sound.Unload(); err != nil {
			m.log.Warn("failed to unload sound", "key", key, "error", err)
		}
	}
}
