package mocks

import (
	"context"
	"sync"
)

// ScriptedResponse is one queued generator result.
type ScriptedResponse struct {
	Text string
	Err  error
}

// ScriptedGenerator replays a fixed script of generation results. When the
// script runs out it returns Fallback with no error.
type ScriptedGenerator struct {
	mu      sync.Mutex
	script  []ScriptedResponse
	prompts []string

	// Fallback is returned once the script is exhausted.
	Fallback string

	// OnGenerate, if set, runs with the prompt before each result is
	// returned. Tests use it to mutate state mid-call, simulating events
	// arriving while a generation is outstanding.
	OnGenerate func(prompt string)
}

// NewScriptedGenerator creates a generator double.
func NewScriptedGenerator(script ...ScriptedResponse) *ScriptedGenerator {
	return &ScriptedGenerator{
		script:   script,
		Fallback: "sounds good, talk soon",
	}
}

// Generate returns the next scripted result.
func (g *ScriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	var response ScriptedResponse
	if len(g.script) > 0 {
		response = g.script[0]
		g.script = g.script[1:]
	} else {
		response = ScriptedResponse{Text: g.Fallback}
	}
	hook := g.OnGenerate
	g.mu.Unlock()

	if hook != nil {
		hook(prompt)
	}

	return response.Text, response.Err
}

// Prompts returns a copy of every prompt seen so far.
func (g *ScriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// CallCount returns how many times Generate ran.
func (g *ScriptedGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
