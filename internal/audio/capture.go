package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// Device kinds returned by classifyDevice.
const (
	kindMic      = "mic"
	kindLoopback = "loopback"
)

var (
	loopbackKeywords = []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}
	micKeywords      = []string{"microphone", "input", "mic", "built-in"}
	preferredMics    = []string{"macbook", "built-in"}
)

// DeviceConfig selects and configures the capture device.
type DeviceConfig struct {
	SampleRate int
	ChunkSize  int
	Format     Format
	// Device, when set, selects the first input whose name contains it (case-insensitive).
	Device   string
	Excluded []string
}

// DeviceSource captures from a PortAudio input device. Each callback buffer becomes one chunk.
type DeviceSource struct {
	cfg DeviceConfig

	mu       sync.Mutex
	stream   *portaudio.Stream
	device   string
	stopOnce sync.Once
}

// NewDeviceSource initializes PortAudio. Close releases it.
func NewDeviceSource(cfg DeviceConfig) (*DeviceSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.SetupFailed, "failed to initialize portaudio")
	}
	return &DeviceSource{cfg: cfg}, nil
}

// Name implements Source.
func (d *DeviceSource) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == "" {
		return "device"
	}
	return "device:" + d.device
}

// Start opens the selected device and begins streaming into sink.
func (d *DeviceSource) Start(ctx context.Context, sink Sink) error {
	devices, err := portaudio.Devices()
	if err != nil {
		return apperrors.Wrap(err, apperrors.SetupFailed, "failed to list audio devices")
	}
	def, _ := portaudio.DefaultInputDevice()

	dev := selectDevice(devices, def, d.cfg.Device, d.cfg.Excluded)
	if dev == nil {
		return apperrors.New(apperrors.SetupFailed, "no usable audio input device").
			WithMetadata("requested", d.cfg.Device)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(d.cfg.SampleRate),
		FramesPerBuffer: d.cfg.ChunkSize,
	}

	var stream *portaudio.Stream
	if d.cfg.Format == S16 {
		stream, err = portaudio.OpenStream(params, func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			sink.Push(callbackChunk(flags, func() Chunk {
				return Chunk{Format: S16, Int16: append([]int16(nil), in...), Timestamp: time.Now()}
			}))
		})
	} else {
		stream, err = portaudio.OpenStream(params, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			sink.Push(callbackChunk(flags, func() Chunk {
				return Chunk{Format: F32, Float32: append([]float32(nil), in...), Timestamp: time.Now()}
			}))
		})
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.SetupFailed, "failed to open %s", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return apperrors.Wrapf(err, apperrors.SetupFailed, "failed to start %s", dev.Name)
	}

	d.mu.Lock()
	d.stream = stream
	d.device = dev.Name
	d.mu.Unlock()

	slog.Info("started audio capture", "device", dev.Name, "sample_rate", d.cfg.SampleRate, "frames", d.cfg.ChunkSize)

	go func() {
		<-ctx.Done()
		d.stop()
	}()
	return nil
}

func (d *DeviceSource) stop() {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		_ = stream.Close()
	}
}

// Close stops the stream and terminates PortAudio.
func (d *DeviceSource) Close() error {
	var err error
	d.stopOnce.Do(func() {
		d.stop()
		err = portaudio.Terminate()
	})
	return err
}

// callbackChunk turns one callback buffer into a chunk. A buffer flagged with an input overflow or
// underflow is not passed on; the consumer gets an AUDIO_FAULT sentinel instead.
func callbackChunk(flags portaudio.StreamCallbackFlags, build func() Chunk) Chunk {
	if flags&(portaudio.InputOverflow|portaudio.InputUnderflow) != 0 {
		return FaultChunk(apperrors.Newf(apperrors.AudioFault, "audio callback status: %s", describeFlags(flags)))
	}
	return build()
}

func describeFlags(flags portaudio.StreamCallbackFlags) string {
	var names []string
	if flags&portaudio.InputOverflow != 0 {
		names = append(names, "input overflow")
	}
	if flags&portaudio.InputUnderflow != 0 {
		names = append(names, "input underflow")
	}
	return strings.Join(names, ", ")
}

// selectDevice picks the input to open. An explicit name match wins, then the best microphone by
// keyword, then the system default input. Loopback devices are only used when named explicitly.
func selectDevice(devices []*portaudio.DeviceInfo, def *portaudio.DeviceInfo, want string, excluded []string) *portaudio.DeviceInfo {
	var best *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if want != "" {
			if containsFold(dev.Name, want) {
				return dev
			}
			continue
		}
		if isExcluded(dev.Name, excluded) || classifyDevice(dev.Name) != kindMic {
			continue
		}
		if best == nil || preferDevice(dev.Name, best.Name) {
			best = dev
		}
	}
	if want != "" {
		return nil
	}
	if best != nil {
		return best
	}
	if def != nil && def.MaxInputChannels > 0 && !isExcluded(def.Name, excluded) {
		return def
	}
	return nil
}

func classifyDevice(name string) string {
	for _, kw := range loopbackKeywords {
		if containsFold(name, kw) {
			return kindLoopback
		}
	}
	for _, kw := range micKeywords {
		if containsFold(name, kw) {
			return kindMic
		}
	}
	return ""
}

func isExcluded(name string, excluded []string) bool {
	for _, ex := range excluded {
		if ex != "" && containsFold(name, ex) {
			return true
		}
	}
	return false
}

// preferDevice reports whether name should replace current as the chosen microphone.
func preferDevice(name, current string) bool {
	for _, p := range preferredMics {
		if containsFold(name, p) && !containsFold(current, p) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// DeviceInfo describes an input device for listing.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
	Kind              string
}

// ListDevices returns all devices with at least one input channel. It initializes and
// terminates PortAudio itself.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.SetupFailed, "failed to initialize portaudio")
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.SetupFailed, "failed to list audio devices")
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			Default:           def != nil && def.Name == dev.Name,
			Kind:              classifyDevice(dev.Name),
		})
	}
	return out, nil
}
