package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// DevicePlayer 基于 miniaudio (malgo) 的播放器
type DevicePlayer struct {
	format    Format
	queue     *sampleQueue
	scratch   []int16
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func NewDevicePlayer(format Format, frameDuration int, logger *slog.Logger) (*DevicePlayer, error) {
	p := &DevicePlayer{
		format: format,
		queue:  newSampleQueue(100),
		done:   make(chan struct{}),
		logger: logger,
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	p.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(format.SampleRate * frameDuration / 1000)

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: p.onSamples,
	})
	if err != nil {
		p.freeContext()
		return nil, fmt.Errorf("failed to initialize audio device: %w", err)
	}
	p.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		p.freeContext()
		return nil, fmt.Errorf("failed to start audio device: %w", err)
	}

	logger.Info("Miniaudio output started",
		"sample_rate", format.SampleRate,
		"channels", format.Channels)
	return p, nil
}

// onSamples 设备回调，输出 S16LE 交错样本
func (p *DevicePlayer) onSamples(output, _ []byte, frameCount uint32) {
	need := int(frameCount) * p.format.Channels
	if cap(p.scratch) < need {
		p.scratch = make([]int16, need)
	}
	samples := p.scratch[:need]

	filled := 0
	select {
	case <-p.done:
	default:
		filled = p.queue.fill(samples)
	}
	for i := filled; i < need; i++ {
		samples[i] = 0
	}

	for i, s := range samples {
		if 2*i+1 >= len(output) {
			break
		}
		binary.LittleEndian.PutUint16(output[2*i:], uint16(s))
	}
}

func (p *DevicePlayer) Play(data []int16) error {
	return p.queue.push(data, p.done)
}

func (p *DevicePlayer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.device != nil {
			if err := p.device.Stop(); err != nil {
				p.logger.Error("failed to stop audio device", "error", err)
			}
			p.device.Uninit()
		}
		p.freeContext()
	})
	return nil
}

func (p *DevicePlayer) freeContext() {
	if p.ctx == nil {
		return
	}
	_ = p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
}
