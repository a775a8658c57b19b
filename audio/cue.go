package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

const (
	sampleRate = 44100
	channels   = 1
	amplitude  = 0.25
	fade       = 5 * time.Millisecond
)

// Cue is a short sound announcing how a job ended
type Cue int

const (
	CueCompleted Cue = iota
	CueCancelled
)

// tone returns the frequency and length of the cue
func (c Cue) tone() (float64, time.Duration) {
	if c == CueCancelled {
		return 330, 200 * time.Millisecond
	}
	return 880, 120 * time.Millisecond
}

// Tone renders a sine wave as signed 16-bit little-endian mono PCM. The
// first and last few milliseconds are faded to avoid clicks.
func Tone(freq float64, d time.Duration, rate uint32) []byte {
	n := int(d.Seconds() * float64(rate))
	fadeN := int(fade.Seconds() * float64(rate))
	pcm := make([]byte, n*2)

	for i := 0; i < n; i++ {
		gain := amplitude
		if i < fadeN {
			gain *= float64(i) / float64(fadeN)
		} else if n-i <= fadeN {
			gain *= float64(n-i-1) / float64(fadeN)
		}
		v := math.Sin(2*math.Pi*freq*float64(i)/float64(rate)) * gain
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return pcm
}

// RMS returns the root mean square level of 16-bit PCM
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Player plays cues on the default output device
type Player struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	mu      sync.Mutex
	pending []byte
}

// NewPlayer opens the default playback device. It stays running and plays
// silence between cues.
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	p := &Player{malgoCtx: ctx}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = channels
	cfg.SampleRate = sampleRate
	cfg.Alsa.NoMMap = 1

	p.device, err = malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: p.onData})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := p.device.Start(); err != nil {
		p.device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	return p, nil
}

func (p *Player) onData(out, _ []byte, _ uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(out, p.pending)
	p.pending = p.pending[n:]
	clear(out[n:])
}

// Play queues cue, replacing whatever is still playing
func (p *Player) Play(c Cue) {
	freq, d := c.tone()
	pcm := Tone(freq, d, sampleRate)

	p.mu.Lock()
	p.pending = pcm
	p.mu.Unlock()
	slog.Debug("Playing cue", "cue", c, "freq", freq)
}

// PlayCompleted plays the completion cue
func (p *Player) PlayCompleted() { p.Play(CueCompleted) }

// PlayCancelled plays the cancel cue
func (p *Player) PlayCancelled() { p.Play(CueCancelled) }

// Close releases the device. It must not be called concurrently with Play.
func (p *Player) Close() error {
	// the data callback takes mu, so the device is stopped without it
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.malgoCtx != nil {
		_ = p.malgoCtx.Uninit()
		p.malgoCtx.Free()
		p.malgoCtx = nil
	}
	return nil
}

// Lazy opens the playback device on the first cue, so sound can be switched
// on while the app runs. A device that fails to open is not retried.
type Lazy struct {
	open func() (*Player, error)

	mu     sync.Mutex
	player *Player
	failed bool
}

// NewLazy returns a Lazy that opens the default playback device
func NewLazy() *Lazy {
	return &Lazy{open: NewPlayer}
}

// PlayCompleted plays the completion cue
func (l *Lazy) PlayCompleted() { l.play(CueCompleted) }

// PlayCancelled plays the cancel cue
func (l *Lazy) PlayCancelled() { l.play(CueCancelled) }

func (l *Lazy) play(c Cue) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.player == nil {
		if l.failed {
			return
		}
		p, err := l.open()
		if err != nil {
			slog.Warn("Sound cues unavailable", "error", err)
			l.failed = true
			return
		}
		l.player = p
	}
	l.player.Play(c)
}

// Close releases the device if it was opened
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.player == nil {
		return nil
	}
	err := l.player.Close()
	l.player = nil
	return err
}
