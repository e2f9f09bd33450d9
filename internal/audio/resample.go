package audio

import "math"

// Resample converts buf to the target rate with per-channel linear
// interpolation. The buffer is returned unchanged when the rates match.
func Resample(buf Buffer, targetRate int) Buffer {
	if targetRate <= 0 || buf.SampleRate == targetRate || buf.SampleRate <= 0 || buf.Channels <= 0 {
		return buf
	}
	inFrames := buf.Frames()
	if inFrames == 0 {
		return Buffer{SampleRate: targetRate, Channels: buf.Channels}
	}

	ratio := float64(buf.SampleRate) / float64(targetRate)
	outFrames := int(math.Round(float64(inFrames) * float64(targetRate) / float64(buf.SampleRate)))
	if outFrames < 1 {
		outFrames = 1
	}
	ch := buf.Channels
	out := make([]float32, outFrames*ch)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		left := int(pos)
		if left >= inFrames-1 {
			left = inFrames - 1
		}
		right := left + 1
		if right >= inFrames {
			right = inFrames - 1
		}
		frac := float32(pos - float64(left))
		if frac > 1 {
			frac = 1
		}
		for c := 0; c < ch; c++ {
			a := buf.Samples[left*ch+c]
			b := buf.Samples[right*ch+c]
			out[i*ch+c] = a + (b-a)*frac
		}
	}
	return Buffer{Samples: out, SampleRate: targetRate, Channels: ch}
}

// Remix converts buf to the given channel count. Downmixing averages the
// source channels; upmixing copies the mono average into every output
// channel.
func Remix(buf Buffer, channels int) Buffer {
	if channels <= 0 || buf.Channels == channels || buf.Channels <= 0 {
		return buf
	}
	frames := buf.Frames()
	out := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < buf.Channels; c++ {
			sum += buf.Samples[i*buf.Channels+c]
		}
		mono := sum / float32(buf.Channels)
		for c := 0; c < channels; c++ {
			out[i*channels+c] = mono
		}
	}
	return Buffer{Samples: out, SampleRate: buf.SampleRate, Channels: channels}
}
