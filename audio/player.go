package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

var ErrPlayerClosed = errors.New("audio player closed")

// sampleQueue 在设备回调中消费 Play 写入的 PCM 帧
type sampleQueue struct {
	buffer    chan []int16
	remaining []int16
}

func newSampleQueue(size int) *sampleQueue {
	return &sampleQueue{buffer: make(chan []int16, size)}
}

// fill 尽量填满 out，返回写入的样本数；只在设备回调线程中调用
func (q *sampleQueue) fill(out []int16) int {
	filled := 0
	for filled < len(out) {
		if len(q.remaining) == 0 {
			select {
			case data := <-q.buffer:
				q.remaining = data
			default:
				return filled
			}
		}
		n := copy(out[filled:], q.remaining)
		q.remaining = q.remaining[n:]
		filled += n
	}
	return filled
}

func (q *sampleQueue) push(data []int16, done <-chan struct{}) error {
	select {
	case q.buffer <- data:
		return nil
	case <-time.After(100 * time.Millisecond):
		return errors.New("audio buffer full")
	case <-done:
		return ErrPlayerClosed
	}
}

// PCMPlayer PortAudio实现的PCM播放器
type PCMPlayer struct {
	sampleRate int
	channels   int
	queue      *sampleQueue
	scratch    []int16
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	stream     *portaudio.Stream
}

// NewPCMPlayer 创建新的PortAudio PCM播放器
func NewPCMPlayer(sampleRate, frameDuration, channels int, logger *slog.Logger) (*PCMPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	player := &PCMPlayer{
		sampleRate: sampleRate,
		channels:   channels,
		queue:      newSampleQueue(100),
		done:       make(chan struct{}),
		logger:     logger,
	}

	frameSize := sampleRate * frameDuration / 1000
	stream, err := portaudio.OpenDefaultStream(
		0,                    // 不录音
		channels,             // 输出通道数
		float64(sampleRate),  // 采样率
		frameSize*3,          // 缓冲区帧数
		player.audioCallback, // 回调函数
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	player.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	logger.Info("PortAudio output started", "sample_rate", sampleRate, "channels", channels)
	return player, nil
}

// audioCallback 把交错的 int16 样本拆分到各输出通道，不足部分补静音
func (p *PCMPlayer) audioCallback(out [][]float32) {
	frames := len(out[0])
	need := frames * len(out)
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

	for pos := 0; pos < need; pos++ {
		channel := pos % len(out)
		frame := pos / len(out)
		if pos < filled {
			out[channel][frame] = float32(samples[pos]) / 32768.0
		} else {
			out[channel][frame] = 0
		}
	}
}

func (p *PCMPlayer) Play(data []int16) error {
	return p.queue.push(data, p.done)
}

func (p *PCMPlayer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)

		if p.stream != nil {
			if err := p.stream.Stop(); err != nil {
				p.logger.Error("failed to stop audio stream", "error", err)
			}
			if err := p.stream.Close(); err != nil {
				p.logger.Error("failed to close audio stream", "error", err)
			}
		}

		portaudio.Terminate()
	})
	return nil
}
