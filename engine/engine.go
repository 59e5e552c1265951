// Package engine 进程内的网络音频流引擎：非阻塞打开、缓冲、解码和混音
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lisuiheng/xiaozhi-radio/audio"
	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
)

var (
	ErrNotReady        = errors.New("stream not ready")
	ErrNoFreeChannel   = errors.New("no free channel")
	ErrUnsupportedMode = errors.New("unsupported playback mode")
	ErrEngineClosed    = errors.New("engine closed")
)

var _ audio.Engine = (*Engine)(nil)

// SourceFactory 根据 URL 创建数据来源
type SourceFactory func(url string) (interfaces.TransportProtocol, error)

// DecoderFactory 创建输出为 format 的解码器
type DecoderFactory func(format audio.Format) (audio.Decoder, error)

type Config struct {
	Format           audio.Format
	FrameDuration    time.Duration // 混音周期
	BufferDuration   time.Duration // 每个流的 PCM 缓冲
	PrebufferPercent int           // 缓冲达到该比例后进入 Ready
	ConnectAttempts  int
	RetryDelay       time.Duration
	MaxChannels      int
}

func (c *Config) setDefaults() {
	if c.FrameDuration <= 0 {
		c.FrameDuration = 20 * time.Millisecond
	}
	if c.BufferDuration <= 0 {
		c.BufferDuration = 2 * time.Second
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxChannels <= 0 {
		c.MaxChannels = 4
	}
}

func (c Config) samples(d time.Duration) int {
	return int(int64(c.Format.SampleRate) * int64(d) / int64(time.Second) * int64(c.Format.Channels))
}

type channel struct {
	id       int
	stream   *stream
	volume   int
	paused   bool
	priority int
}

// Engine 实现 audio.Engine
type Engine struct {
	config   Config
	logger   *slog.Logger
	sink     audio.AudioPlayer
	sources  SourceFactory
	decoders map[string]DecoderFactory

	mu          sync.Mutex
	streams     map[audio.Handle]*stream
	channels    map[int]*channel
	nextHandle  audio.Handle
	nextChannel int
	closed      bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New 创建引擎并启动混音 goroutine
func New(cfg Config, sink audio.AudioPlayer, sources SourceFactory, decoders map[string]DecoderFactory, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if sink == nil || sources == nil {
		return nil, errors.New("sink and source factory are required")
	}
	if cfg.Format.SampleRate <= 0 || cfg.Format.Channels <= 0 {
		return nil, fmt.Errorf("invalid engine format: %+v", cfg.Format)
	}
	cfg.setDefaults()

	e := &Engine{
		config:   cfg,
		logger:   logger.With("component", "engine"),
		sink:     sink,
		sources:  sources,
		decoders: decoders,
		streams:  make(map[audio.Handle]*stream),
		channels: make(map[int]*channel),
		done:     make(chan struct{}),
	}

	e.wg.Add(1)
	go e.mixLoop()

	e.logger.Info("Stream engine started",
		"sample_rate", cfg.Format.SampleRate,
		"channels", cfg.Format.Channels,
		"buffer", cfg.BufferDuration,
		"max_channels", cfg.MaxChannels)
	return e, nil
}

// OpenStream 创建句柄并在后台连接。未设置 OpenNonBlocking 时等待 Ready 或失败。
func (e *Engine) OpenStream(url string, flags audio.OpenFlags) (audio.Handle, error) {
	if url == "" {
		return audio.NoHandle, audio.ErrEmptyURL
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return audio.NoHandle, ErrEngineClosed
	}
	e.nextHandle++
	h := e.nextHandle
	s := newStream(h, url, newPCMBuffer(e.config.samples(e.config.BufferDuration)), e.logger)
	e.streams[h] = s
	e.mu.Unlock()

	go s.run(e.config, e.sources, e.decoders)

	if flags&audio.OpenNonBlocking == 0 {
		<-s.opened
	}
	return h, nil
}

func (e *Engine) stream(h audio.Handle) *stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams[h]
}

func (e *Engine) Status(h audio.Handle) audio.EngineStatus {
	s := e.stream(h)
	if s == nil {
		return audio.EngineStatusInvalidHandle
	}
	return s.status()
}

func (e *Engine) NetStatus(h audio.Handle) audio.NetInfo {
	s := e.stream(h)
	if s == nil {
		return audio.NetInfo{Status: audio.EngineNetNotConnected}
	}
	return audio.NetInfo{
		Status:          s.netStatus(),
		BufferedPercent: s.buf.percent(),
		Bitrate:         int(s.bitrate.Load()),
	}
}

func (e *Engine) SetMode(h audio.Handle, mode audio.Mode) error {
	s := e.stream(h)
	if s == nil {
		return audio.ErrInvalidHandle
	}
	if mode != audio.Mode2D {
		return ErrUnsupportedMode
	}
	s.mode.Store(int32(mode))
	return nil
}

func (e *Engine) SetMetadataCallback(h audio.Handle, cb audio.MetadataCallback) error {
	s := e.stream(h)
	if s == nil {
		return audio.ErrInvalidHandle
	}
	s.setCallback(cb)
	return nil
}

// Play 为就绪的流分配通道。通道已满时抢占优先级低于默认值的通道。
func (e *Engine) Play(h audio.Handle, paused bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.streams[h]
	if !ok {
		return audio.NoChannel, audio.ErrInvalidHandle
	}
	if s.status() != audio.EngineStatusSuccess {
		return audio.NoChannel, ErrNotReady
	}

	if len(e.channels) >= e.config.MaxChannels {
		victim := e.lowestPriorityChannel()
		if victim == nil || victim.priority >= audio.PriorityDefault {
			return audio.NoChannel, ErrNoFreeChannel
		}
		e.logger.Debug("Stealing channel", "channel", victim.id, "priority", victim.priority)
		delete(e.channels, victim.id)
	}

	id := e.nextChannel
	e.nextChannel++
	e.channels[id] = &channel{
		id:       id,
		stream:   s,
		volume:   audio.MaxVolume,
		paused:   paused,
		priority: audio.PriorityDefault,
	}
	return id, nil
}

func (e *Engine) lowestPriorityChannel() *channel {
	var lowest *channel
	for _, ch := range e.channels {
		if lowest == nil || ch.priority < lowest.priority ||
			(ch.priority == lowest.priority && ch.id < lowest.id) {
			lowest = ch
		}
	}
	return lowest
}

// Close 同步关闭句柄，等待流 goroutine 退出
func (e *Engine) Close(h audio.Handle) {
	e.mu.Lock()
	s, ok := e.streams[h]
	if ok {
		delete(e.streams, h)
		for id, ch := range e.channels {
			if ch.stream == s {
				delete(e.channels, id)
			}
		}
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	s.shutdown()
	<-s.done
	s.logger.Debug("Stream closed")
}

func (e *Engine) SetVolume(id int, volume int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[id]; ok {
		ch.volume = max(0, min(audio.MaxVolume, volume))
	}
}

func (e *Engine) SetPaused(id int, paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[id]; ok {
		ch.paused = paused
	}
}

func (e *Engine) SetPriority(id int, priority int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[id]; ok {
		ch.priority = max(audio.PriorityLowest, min(audio.PriorityHighest, priority))
	}
}

// Shutdown 取消所有流但不等待仍在连接的流，然后关闭输出
func (e *Engine) Shutdown() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		streams := e.streams
		e.streams = make(map[audio.Handle]*stream)
		e.channels = make(map[int]*channel)
		e.mu.Unlock()

		for _, s := range streams {
			s.shutdown()
		}

		close(e.done)
		e.wg.Wait()

		if e.sink != nil {
			err = e.sink.Close()
		}
		e.logger.Info("Stream engine stopped", "abandoned_streams", len(streams))
	})
	return err
}
