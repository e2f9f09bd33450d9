package audio

// Normalize scales buf by a single positive factor so its peak absolute
// amplitude becomes 1.0. An all-zero buffer is returned as a copy.
func Normalize(buf Buffer) Buffer {
	out := buf.Clone()
	peak := float64(buf.Peak())
	if peak == 0 {
		return out
	}
	for i, s := range out.Samples {
		// Division keeps the peak sample at exactly ±1.
		out.Samples[i] = float32(float64(s) / peak)
	}
	return out
}
