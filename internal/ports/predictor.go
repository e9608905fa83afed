package ports

// MovingAveragePredictor forecasts future load as a flat continuation of
// the trailing window average. It is a deliberately simplified stand-in
// for the reference project's LSTM demand predictor: no core operation
// depends on its output, so an approximate forecast satisfies the
// auxiliary, read-only contract of the Predictor port.
type MovingAveragePredictor struct {
	Window int
}

// NewMovingAveragePredictor returns a predictor averaging the trailing
// window samples. window <= 0 defaults to 24.
func NewMovingAveragePredictor(window int) *MovingAveragePredictor {
	if window <= 0 {
		window = 24
	}
	return &MovingAveragePredictor{Window: window}
}

// Predict returns horizon copies of the trailing window's mean. Returns
// nil if history is empty.
func (p *MovingAveragePredictor) Predict(history []float64, horizon int) []float64 {
	if len(history) == 0 || horizon <= 0 {
		return nil
	}

	w := p.Window
	if w > len(history) {
		w = len(history)
	}
	tail := history[len(history)-w:]

	var sum float64
	for _, v := range tail {
		sum += v
	}
	mean := sum / float64(len(tail))

	out := make([]float64, horizon)
	for i := range out {
		out[i] = mean
	}
	return out
}
