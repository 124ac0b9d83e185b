// Package audio synthesizes the metronome click and writes it to a PCM track.
//
// Device is a clock.Source: opening it acquires the output track (and the WAV
// file behind it, when configured) on top of a base time source, and the
// returned Track both tells time and implements metronome.Clicker. Each click is
// mixed in at the sample offset of its virtual tick time, so its placement does
// not depend on when the poll that produced it happened to run.
package audio

import (
	"math"
	"time"
)

const (
	DefaultSampleRate = 44100
	DefaultFrequency  = 1000.0
	DefaultVolume     = 1.0

	clickAttack   = time.Millisecond
	clickDecay    = 20 * time.Millisecond // reaches decayFloor
	clickDuration = 100 * time.Millisecond
	decayFloor    = 0.001
)

// renderClick returns one click: a sine burst with a 1ms linear attack and an
// exponential decay to decayFloor at 20ms, held there until the tone stops at 100ms.
func renderClick(sampleRate int, freq, volume float64) []float64 {
	n := int(clickDuration.Seconds() * float64(sampleRate))
	out := make([]float64, n)
	attack := clickAttack.Seconds()
	decay := clickDecay.Seconds()
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = volume * envelope(t, attack, decay) * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

func envelope(t, attack, decay float64) float64 {
	switch {
	case t < attack:
		return t / attack
	case t < decay:
		return math.Pow(decayFloor, (t-attack)/(decay-attack))
	default:
		return decayFloor
	}
}
