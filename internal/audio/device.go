package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"tempolock/internal/clock"
	logx "tempolock/pkg/logx"
)

// DefaultMaxDuration bounds the mixed track of a live session.
const DefaultMaxDuration = 10 * time.Minute

var ErrInvalidConfig = errors.New("audio: invalid config")

type Config struct {
	SampleRate  int
	Frequency   float64
	Volume      *float64      // 0..1; nil means DefaultVolume
	Path        string        // WAV output; empty counts clicks without mixing samples
	MaxDuration time.Duration // clicks past this point are dropped
}

// Vol returns a volume for Config.Volume.
func Vol(v float64) *float64 { return &v }

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Frequency == 0 {
		c.Frequency = DefaultFrequency
	}
	if c.Volume == nil {
		c.Volume = Vol(DefaultVolume)
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return c
}

func (c Config) Validate() error {
	c = c.withDefaults()
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return fmt.Errorf("%w: sample_rate %d out of range", ErrInvalidConfig, c.SampleRate)
	case c.Frequency <= 0 || c.Frequency >= float64(c.SampleRate)/2:
		return fmt.Errorf("%w: frequency %v must be below nyquist", ErrInvalidConfig, c.Frequency)
	case !(*c.Volume >= 0 && *c.Volume <= 1):
		return fmt.Errorf("%w: volume %v must be within 0..1", ErrInvalidConfig, *c.Volume)
	case c.MaxDuration < 0:
		return fmt.Errorf("%w: max_duration must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Device opens click tracks over a base time source.
type Device struct {
	cfg  Config
	base clock.Source
	log  logx.Logger

	mu   sync.Mutex
	last *Track
}

func NewDevice(cfg Config, base clock.Source, log logx.Logger) *Device {
	if base == nil {
		base = clock.System{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Device{cfg: cfg.withDefaults(), base: base, log: log}
}

// Open acquires a fresh track. Failures wrap clock.ErrUnavailable.
func (d *Device) Open() (clock.Clock, error) {
	if err := d.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", clock.ErrUnavailable, err)
	}
	c, err := d.base.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", clock.ErrUnavailable, err)
	}

	t := &Track{
		Clock:      c,
		origin:     c.Now(),
		sampleRate: d.cfg.SampleRate,
		maxSamples: int(d.cfg.MaxDuration.Seconds() * float64(d.cfg.SampleRate)),
		click:      renderClick(d.cfg.SampleRate, d.cfg.Frequency, *d.cfg.Volume),
		log:        d.log,
	}
	if path := strings.TrimSpace(d.cfg.Path); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %w", clock.ErrUnavailable, err)
		}
		f, err := os.Create(path)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %w", clock.ErrUnavailable, err)
		}
		t.file = f
		t.mix = true
	}

	d.mu.Lock()
	d.last = t
	d.mu.Unlock()
	d.log.Debug("click track opened", logx.String("path", d.cfg.Path), logx.Int("sample_rate", d.cfg.SampleRate))
	return t, nil
}

// LastTrack returns the most recently opened track, if any.
func (d *Device) LastTrack() *Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Track is an opened output: a clock plus the mono sample buffer clicks are mixed into.
type Track struct {
	clock.Clock

	origin     float64
	sampleRate int
	maxSamples int
	click      []float64
	log        logx.Logger
	mix        bool // samples are kept only when they will be written

	mu        sync.Mutex
	samples   []float64
	clicks    int
	dropped   int
	closed    bool
	file      *os.File
	closeErr  error
	closeOnce sync.Once
}

// Click mixes one click starting at the sample for clock time at.
func (t *Track) Click(at float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	start := int(math.Round((at - t.origin) * float64(t.sampleRate)))
	if start < 0 {
		start = 0
	}
	end := start + len(t.click)
	if t.maxSamples > 0 && end > t.maxSamples {
		if t.dropped == 0 {
			t.log.Warn("click track full; dropping further clicks", logx.Int("max_samples", t.maxSamples))
		}
		t.dropped++
		return
	}
	t.clicks++
	if !t.mix {
		return
	}
	if end > len(t.samples) {
		t.samples = append(t.samples, make([]float64, end-len(t.samples))...)
	}
	for i, v := range t.click {
		t.samples[start+i] += v
	}
}

func (t *Track) Clicks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clicks
}

// Samples returns a copy of the mixed track. It is empty for tracks without a file.
func (t *Track) Samples() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.samples...)
}

func (t *Track) SampleRate() int { return t.sampleRate }

// Close releases the base clock and, when backed by a file, writes the WAV.
func (t *Track) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		samples := t.samples
		f := t.file
		t.file = nil
		t.mu.Unlock()

		err := t.Clock.Close()
		if f != nil {
			if werr := writeWAV(f, t.sampleRate, samples); werr != nil && err == nil {
				err = werr
			}
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		t.closeErr = err
	})
	return t.closeErr
}

func writeWAV(f *os.File, sampleRate int, samples []float64) error {
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, v := range samples {
		// overlapping clicks can sum past full scale
		v = math.Max(-1, math.Min(1, v))
		buf.Data[i] = int(v * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}
