package audio

import (
	"errors"
	"math"
)

// ErrEmptySignal is returned when silence removal leaves nothing behind.
var ErrEmptySignal = errors.New("no audio above the silence threshold")

// amin floors frame energy before the dB conversion.
const amin = 1e-10

// SplitOptions controls the short-time energy split.
type SplitOptions struct {
	TopDB       float64
	FrameLength int
	HopLength   int
}

// DefaultSplitOptions keeps frames within 20 dB of the loudest one using
// 2048-sample frames and a 512-sample hop.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{TopDB: 20, FrameLength: 2048, HopLength: 512}
}

func (o SplitOptions) normalized() SplitOptions {
	def := DefaultSplitOptions()
	if o.TopDB <= 0 {
		o.TopDB = def.TopDB
	}
	if o.FrameLength <= 0 {
		o.FrameLength = def.FrameLength
	}
	if o.HopLength <= 0 {
		o.HopLength = def.HopLength
	}
	return o
}

// Interval is a half-open [Start, End) range of sample frames.
type Interval struct {
	Start int
	End   int
}

// Len returns the number of frames in the interval.
func (i Interval) Len() int { return i.End - i.Start }

// Split returns the intervals of buf whose frame energy lies within TopDB of
// the loudest frame. Frames are centered on multiples of HopLength and padded
// with zeros at both ends. A buffer with no energy at all yields no intervals.
func Split(buf Buffer, opts SplitOptions) []Interval {
	opts = opts.normalized()
	n := buf.Frames()
	if n == 0 {
		return nil
	}
	ch := buf.Channels

	// prefix[c][i] holds the sum of squares of channel c over frames [0, i).
	prefix := make([][]float64, ch)
	for c := 0; c < ch; c++ {
		p := make([]float64, n+1)
		for i := 0; i < n; i++ {
			s := float64(buf.Samples[i*ch+c])
			p[i+1] = p[i] + s*s
		}
		prefix[c] = p
	}

	half := opts.FrameLength / 2
	padded := n + 2*half
	if padded < opts.FrameLength {
		return nil
	}
	frames := 1 + (padded-opts.FrameLength)/opts.HopLength

	energy := make([]float64, frames)
	var ref float64
	for t := 0; t < frames; t++ {
		lo := t*opts.HopLength - half
		hi := lo + opts.FrameLength
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		var loudest float64
		if hi > lo {
			for c := 0; c < ch; c++ {
				mse := (prefix[c][hi] - prefix[c][lo]) / float64(opts.FrameLength)
				if mse > loudest {
					loudest = mse
				}
			}
		}
		energy[t] = loudest
		if loudest > ref {
			ref = loudest
		}
	}
	if ref <= amin {
		return nil
	}

	refDB := 10 * math.Log10(ref)
	threshold := -opts.TopDB
	var intervals []Interval
	start := -1
	for t := 0; t < frames; t++ {
		db := 10*math.Log10(math.Max(amin, energy[t])) - refDB
		loud := db > threshold
		switch {
		case loud && start < 0:
			start = t
		case !loud && start >= 0:
			intervals = appendInterval(intervals, start*opts.HopLength, t*opts.HopLength, n)
			start = -1
		}
	}
	if start >= 0 {
		intervals = appendInterval(intervals, start*opts.HopLength, frames*opts.HopLength, n)
	}
	return intervals
}

func appendInterval(intervals []Interval, start, end, limit int) []Interval {
	if start > limit {
		start = limit
	}
	if end > limit {
		end = limit
	}
	if end <= start {
		return intervals
	}
	return append(intervals, Interval{Start: start, End: end})
}

// RemoveSilence concatenates the non-silent intervals of buf, discarding the
// gaps between them. ErrEmptySignal is returned when no interval survives.
func RemoveSilence(buf Buffer, opts SplitOptions) (Buffer, error) {
	intervals := Split(buf, opts)
	total := 0
	for _, iv := range intervals {
		total += iv.Len()
	}
	if total == 0 {
		return Buffer{SampleRate: buf.SampleRate, Channels: buf.Channels}, ErrEmptySignal
	}
	ch := buf.Channels
	out := make([]float32, 0, total*ch)
	for _, iv := range intervals {
		out = append(out, buf.Samples[iv.Start*ch:iv.End*ch]...)
	}
	return Buffer{Samples: out, SampleRate: buf.SampleRate, Channels: ch}, nil
}
