package assets

import "context"

// Image is an opaque handle to a resolved image resource. The engine never
// decodes pixels; the presentation layer decides what a locator means.
type Image interface {
	Locator() string
}

// StaticImage is the trivial Image for platforms where the locator itself
// is the displayable resource (a URL or file path).
type StaticImage string

// Locator returns the underlying locator string.
func (s StaticImage) Locator() string { return string(s) }

// Sound is a playable audio resource.
type Sound interface {
	// Play starts playback from the beginning, looping when loop is true.
	Play(loop bool) error
	// Stop halts playback.
	Stop() error
	// Unload releases the underlying resource. The Sound is unusable
	// afterwards.
	Unload() error
}

// Resolver turns manifest-declared source locators into loadable
// resources. Platform concerns (bundled files, URL fetch, audio decoding)
// live entirely behind this interface; returning an error or a nil
// resource marks the asset unresolved without failing the load phase.
type Resolver interface {
	ResolveImage(ctx context.Context, key, locator string) (Image, error)
	ResolveAudio(ctx context.Context, key, locator string) (Sound, error)
}
