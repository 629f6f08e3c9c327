package imagegen

import (
	"fmt"
	"strings"
)

// Style is an art-style preset.
type Style string

const (
	StyleAnime Style = "Anime"
	StyleManga Style = "Manga"
	StyleMale  Style = "Male"
)

// ParseStyle maps a config or save value to a preset, ignoring case and
// defaulting to Anime.
func ParseStyle(s string) Style {
	for _, st := range []Style{StyleManga, StyleMale} {
		if strings.EqualFold(s, string(st)) {
			return st
		}
	}
	return StyleAnime
}

// Prompt returns the style's prompt prefix.
func (s Style) Prompt() string {
	switch s {
	case StyleManga:
		return "Japanese Manga style, black and white, detailed screentones, high quality ink drawing, sharp lines."
	case StyleMale:
		return "Otome game CG, handsome male character focus, detailed, sparkling, shoujo manga style."
	default:
		return "Visual Novel Event CG, Masterpiece anime art style. high quality, detailed, soft lighting, vibrant colors, trending on artstation, 2d anime style, cell shading, sharp lines."
	}
}

// interactionKeywords switch a scene to a first-person framing.
var interactionKeywords = []string{
	"touch", "hold", "hand", "kiss", "hug", "embrace", "caress", "lap", "pov", "close", "intimate", "bed",
}

// Prompt renders the full text prompt for the request.
func (r Request) Prompt() string {
	switch r.Class {
	case ClassPortrait:
		return r.portraitPrompt()
	case ClassItem:
		return r.itemPrompt()
	default:
		return r.scenePrompt()
	}
}

func (r Request) portraitPrompt() string {
	style := r.Style.Prompt() + " textless, no speech bubbles, no ui, no HUD, no words."
	lead := "Portrait of a female character."
	if r.Reference != "" {
		lead = "Create a character portrait that strongly resembles the provided reference image (pose, composition, or style), but matching the following description:"
	}
	return fmt.Sprintf("%s %s Visual: [%s]. solo, looking at viewer, detailed eyes, emotive expression. clean background, no text, no speech bubble.",
		style, lead, r.Subject)
}

// sceneContext is the visual-state block shared by scene prompts.
func (r Request) sceneContext() string {
	return fmt.Sprintf("Persona Visual: %s, %s. User Action: %s. Environment: %s. Specific Event: %s",
		r.Visual.PersonaPose, r.Visual.PersonaClothing, r.Visual.UserAction, r.Visual.Atmosphere, r.Event)
}

// IsInteraction reports whether the scene context calls for a POV framing.
func (r Request) IsInteraction() bool {
	ctx := strings.ToLower(r.sceneContext())
	for _, kw := range interactionKeywords {
		if strings.Contains(ctx, kw) {
			return true
		}
	}
	return false
}

func (r Request) scenePrompt() string {
	style := r.Style.Prompt() + " textless, no speech bubbles, no dialogue box."
	framing := "Cinematic shot. The female character is present in the scene, fitting into the environment naturally."
	if r.IsInteraction() {
		framing = "First Person POV shot. The viewer (male protagonist) is interacting with the female character. Showing male hands or body parts if interacting. Immersive perspective."
	}
	ref := ""
	if r.Reference != "" {
		ref = " The character in the image must closely match the provided reference image (hair, eyes, face)."
	}
	return fmt.Sprintf("%s%s Scenery background illustration. Context: [%s]. The female character (%s). %s Cinematic composition, atmospheric lighting. no text.",
		style, ref, r.sceneContext(), r.Subject, framing)
}

func (r Request) itemPrompt() string {
	return fmt.Sprintf("Visual Novel Event CG, Masterpiece anime art style. High quality fantasy item concept art illustration. Object: [%s]. Cinematic lighting, magical glow, detailed texture, 8k resolution, photorealistic masterpiece, centered composition. Close-up shot of the object. No text, no numbers, no ui overlays.",
		r.Subject)
}
