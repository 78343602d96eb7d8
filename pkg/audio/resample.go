package audio

// Resample converts samples from one rate to another by linear
// interpolation. Good enough for speech playback; callers needing exact
// fidelity should open their devices at the stream's native rate.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || len(samples) == 0 {
		return nil
	}
	if from == to {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := int(float64(len(samples)) * float64(to) / float64(from))
	if n <= 0 {
		n = 1
	}
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
