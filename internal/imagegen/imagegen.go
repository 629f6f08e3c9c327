// Package imagegen turns narrative moments into illustrations. A request
// names the image class and the visual context; backends (Gradio, Gemini)
// return the image as a data URI or URL.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// ErrNoImage is returned when no backend produced an image.
var ErrNoImage = errors.New("no image produced")

// Class is the kind of illustration, which fixes its dimensions.
type Class int

const (
	ClassPortrait Class = iota
	ClassScene
	ClassItem
)

func (c Class) String() string {
	switch c {
	case ClassPortrait:
		return "portrait"
	case ClassScene:
		return "scene"
	case ClassItem:
		return "item"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Size returns the pixel dimensions requested from Gradio.
func (c Class) Size() (width, height int) {
	switch c {
	case ClassPortrait:
		return 768, 1024
	case ClassItem:
		return 1024, 1024
	default:
		return 1024, 576
	}
}

// AspectRatio returns the ratio requested from Gemini.
func (c Class) AspectRatio() string {
	switch c {
	case ClassPortrait:
		return "3:4"
	case ClassItem:
		return "1:1"
	default:
		return "16:9"
	}
}

// Placeholders shown when synthesis fails and an image is still required.
const (
	PortraitPlaceholder = "https://placehold.co/600x800/png?text=Image+Generation+Failed"
	ScenePlaceholder    = "https://placehold.co/1280x720/png?text=Scene+Generation+Failed"
	ItemPlaceholder     = "https://placehold.co/400?text=No+Image"
)

// Placeholder returns the fallback image for c.
func Placeholder(c Class) string {
	switch c {
	case ClassPortrait:
		return PortraitPlaceholder
	case ClassItem:
		return ItemPlaceholder
	default:
		return ScenePlaceholder
	}
}

// IsPlaceholder reports whether url is one of the fallback images.
func IsPlaceholder(url string) bool {
	return strings.HasPrefix(url, "https://placehold.co/")
}

// Request describes one illustration.
type Request struct {
	Class Class

	// Subject is the persona appearance for portraits and scenes, or the
	// item description for items.
	Subject string

	// Visual and Event only apply to scenes.
	Visual game.VisualState
	Event  string

	Style Style

	// Reference is an optional data URI the Gemini backend uses to keep the
	// character consistent. Gradio ignores it.
	Reference string
}

// Synthesizer produces an image for a request. It returns ErrNoImage (or a
// wrapped backend error) when nothing could be produced.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

// SynthesizeOrPlaceholder never fails: it returns the class placeholder when
// synthesis does.
func SynthesizeOrPlaceholder(ctx context.Context, s Synthesizer, req Request) string {
	url, err := s.Synthesize(ctx, req)
	if err != nil || url == "" {
		return Placeholder(req.Class)
	}
	return url
}

// dataURI encodes raw image bytes.
func dataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// parseDataURI splits a data URI into its MIME type and decoded bytes.
func parseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	mimeType, _, _ := strings.Cut(meta, ";")
	if mimeType == "" {
		mimeType = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	return mimeType, data, nil
}
