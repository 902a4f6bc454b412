package tone

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// Siren generator defaults: a two-tone alarm alternating between a low and
// a high pitch, rendered as 16-bit little-endian mono PCM.
const (
	SampleRate = 48000
	LowHz      = 650.0
	HighHz     = 950.0

	// AlternateEvery is how long each pitch holds before switching.
	AlternateEvery = 500 * time.Millisecond

	frameDuration = 20 * time.Millisecond
	amplitude     = 0.6
)

// Generator renders the alternating two-tone siren into a Buffer in real
// time. It runs until its context is canceled.
type Generator struct {
	out  *Buffer
	tick func(time.Duration) <-chan time.Time
}

// NewGenerator creates a Generator writing into out.
func NewGenerator(out *Buffer) *Generator {
	return &Generator{
		out: out,
		tick: func(d time.Duration) <-chan time.Time {
			return time.After(d)
		},
	}
}

// Run generates frames until ctx is canceled. It always returns nil after
// cancellation so callers can run it in a bare goroutine.
func (g *Generator) Run(ctx context.Context) error {
	var phase float64
	elapsed := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.tick(frameDuration):
		}

		freq := LowHz
		if (elapsed/AlternateEvery)%2 == 1 {
			freq = HighHz
		}
		frame := renderFrame(freq, &phase)
		if _, err := g.out.Write(frame); err != nil {
			return err
		}
		elapsed += frameDuration
	}
}

// Frame renders a single 20ms frame at the pitch active at offset elapsed.
// Exposed for tests and for sinks that pull rather than stream.
func Frame(elapsed time.Duration) []byte {
	freq := LowHz
	if (elapsed/AlternateEvery)%2 == 1 {
		freq = HighHz
	}
	var phase float64
	return renderFrame(freq, &phase)
}

func renderFrame(freq float64, phase *float64) []byte {
	samples := int(SampleRate * frameDuration / time.Second)
	out := make([]byte, samples*2)
	step := 2 * math.Pi * freq / SampleRate
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(*phase) * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		*phase += step
		if *phase > 2*math.Pi {
			*phase -= 2 * math.Pi
		}
	}
	return out
}
