package main

import (
	"context"
	"log/slog"

	"github.com/lunabay/chapter-engine/pkg/assets"
)

// terminalResolver is the trivial asset resolver for console playback:
// images resolve to their locator string (rendered as status lines), audio
// resolves to a silent stand-in so music/sfx effects stay exercised.
type terminalResolver struct {
	log *slog.Logger
}

var _ assets.Resolver = (*terminalResolver)(nil)

func newTerminalResolver(log *slog.Logger) *terminalResolver {
	return &terminalResolver{log: log}
}

func (r *terminalResolver) ResolveImage(ctx context.Context, key, locator string) (assets.Image, error) {
	if locator == "" {
		return nil, nil
	}
	return assets.StaticImage(locator), nil
}

func (r *terminalResolver) ResolveAudio(ctx context.Context, key, locator string) (assets.Sound, error) {
	if locator == "" {
		return nil, nil
	}
	return &silentSound{key: key, log: r.log}, nil
}

// silentSound satisfies the playback contract without a terminal audio
// stack.
type silentSound struct {
	key string
	log *slog.Logger
}

func (s *silentSound) Play(loop bool) error {
	s.log.Debug("audio play", "key", s.key, "loop", loop)
	return nil
}

func (s *silentSound) Stop() error {
	s.log.Debug("audio stop", "key", s.key)
	return nil
}

func (s *silentSound) Unload() error { return nil }
