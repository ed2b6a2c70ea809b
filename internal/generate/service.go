// Package generate talks to the content generation provider: scene visuals
// from prompts and scene breakdowns from raw story text.
package generate

import "context"

// Asset is a generated visual saved locally.
type Asset struct {
	Path string `json:"path"`
	MIME string `json:"mime"`
}

// Beat is one scene proposed by a story breakdown.
type Beat struct {
	Script string `json:"script"`
	Prompt string `json:"prompt"`
}

type Service interface {
	GenerateVisual(ctx context.Context, prompt string) (Asset, error)
	BreakdownStory(ctx context.Context, text string) ([]Beat, error)
	ValidateCredential(ctx context.Context) (bool, error)
}

// Split turns beats into the prompt and script lists a timeline is built from.
func Split(beats []Beat) (prompts, scripts []string) {
	for _, b := range beats {
		prompts = append(prompts, b.Prompt)
		scripts = append(scripts, b.Script)
	}
	return prompts, scripts
}
