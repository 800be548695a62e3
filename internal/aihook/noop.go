package aihook

import "context"

// Noop is the default Hook used whenever `llm.enabled` is false or no
// repository configures a hook. It never vetoes and never supplies a
// commit message, leaving the workflow to fall back to the rendered
// template (§4.7 step 5).
type Noop struct{}

// Disabled returns a Hook that takes no action. The name is surfaced in
// logs so it is obvious the LLM path was never engaged.
func Disabled() Hook { return Noop{} }

func (Noop) Name() string { return "disabled" }

func (Noop) ReviewChanges(ctx context.Context, diff string) (*ReviewResult, error) {
	return &ReviewResult{Veto: false}, nil
}

func (Noop) GenerateCommitMessage(ctx context.Context, diff string) (string, error) {
	return "", nil
}
