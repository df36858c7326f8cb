package agent

// Confidence deltas applied after each evaluated action.
const (
	confidenceGain = 0.05
	confidenceLoss = 0.10
)

// Evaluate derives an Evaluation from a finished action. Success requires
// both SUCCESS status and a non-empty result.
func Evaluate(a *Action) *Evaluation {
	if a == nil {
		return nil
	}
	hasResult := a.Result != nil
	success := a.Status == ActionSuccess && hasResult

	delta := -confidenceLoss
	if success {
		delta = confidenceGain
	}
	if a.Status == ActionSkipped {
		delta = 0
	}

	return &Evaluation{
		Success:         success,
		Duration:        a.Duration,
		HasResult:       hasResult,
		ConfidenceDelta: delta,
	}
}

// clampConfidence keeps confidence within [0, 1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
