package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lisuiheng/xiaozhi-radio/audio"
	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
	"github.com/lisuiheng/xiaozhi-radio/utils"
)

// 连续解码失败超过该次数视为流已损坏
const maxDecodeErrors = 50

type stream struct {
	handle audio.Handle
	url    string
	logger *slog.Logger
	buf    *pcmBuffer

	state   atomic.Int32 // audio.EngineStatus
	net     atomic.Int32 // audio.EngineNetStatus
	bitrate atomic.Int32
	mode    atomic.Int32

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	opened     chan struct{}
	openedOnce sync.Once

	mu       sync.Mutex
	source   interfaces.TransportProtocol
	callback audio.MetadataCallback
}

func newStream(h audio.Handle, url string, buf *pcmBuffer, logger *slog.Logger) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		handle: h,
		url:    url,
		logger: logger.With("handle", h),
		buf:    buf,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		opened: make(chan struct{}),
	}
	s.setStatus(audio.EngineStatusOpening)
	s.setNet(audio.EngineNetNotConnected)
	return s
}

func (s *stream) status() audio.EngineStatus       { return audio.EngineStatus(s.state.Load()) }
func (s *stream) netStatus() audio.EngineNetStatus { return audio.EngineNetStatus(s.net.Load()) }

func (s *stream) setStatus(v audio.EngineStatus) { s.state.Store(int32(v)) }
func (s *stream) setNet(v audio.EngineNetStatus) { s.net.Store(int32(v)) }
func (s *stream) ready() bool                    { return s.status() == audio.EngineStatusSuccess }
func (s *stream) markOpened()                    { s.openedOnce.Do(func() { close(s.opened) }) }

func (s *stream) setCallback(cb audio.MetadataCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

func (s *stream) setSource(src interfaces.TransportProtocol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// shutdown 取消连接并唤醒所有阻塞点，不等待 goroutine 退出
func (s *stream) shutdown() {
	s.cancel()
	s.buf.close()

	s.mu.Lock()
	src := s.source
	s.mu.Unlock()
	if src != nil {
		_ = src.Close()
	}
}

func (s *stream) fail(stage string, err error) {
	s.setStatus(audio.EngineStatusFailed)
	s.setNet(audio.EngineNetError)
	s.markOpened()
	if s.ctx.Err() == nil {
		s.logger.Warn("Stream failed", "url", s.url, "stage", stage, "error", err)
	}
}

func (s *stream) run(cfg Config, sources SourceFactory, decoders map[string]DecoderFactory) {
	defer close(s.done)
	defer s.markOpened()

	src, err := sources(s.url)
	if err != nil {
		s.fail("source", err)
		return
	}
	s.setSource(src)
	defer src.Close()
	if s.ctx.Err() != nil {
		return
	}

	s.setStatus(audio.EngineStatusConnecting)
	s.setNet(audio.EngineNetConnecting)
	if err := s.connect(src, cfg); err != nil {
		s.fail("connect", err)
		return
	}
	s.bitrate.Store(int32(src.Bitrate()))

	newDecoder, ok := decoders[src.ProtocolType()]
	if !ok {
		s.fail("decoder", fmt.Errorf("%w: no decoder for %s", interfaces.ErrUnsupportedProtocol, src.ProtocolType()))
		return
	}
	dec, err := newDecoder(cfg.Format)
	if err != nil {
		s.fail("decoder", err)
		return
	}
	defer dec.Close()

	s.setStatus(audio.EngineStatusBuffering)
	s.setNet(audio.EngineNetBuffering)
	s.logger.Debug("Stream connected", "url", s.url, "protocol", src.ProtocolType(), "bitrate", src.Bitrate())

	if !s.pump(src, dec, cfg.PrebufferPercent) {
		return
	}

	// 数据源结束
	if !s.ready() {
		s.fail("buffering", io.ErrUnexpectedEOF)
		return
	}
	s.setNet(audio.EngineNetNotConnected)
	s.logger.Info("Stream ended", "url", s.url)
}

func (s *stream) connect(src interfaces.TransportProtocol, cfg Config) error {
	backoff := utils.NewExponentialBackoffWith(cfg.RetryDelay, 8*cfg.RetryDelay)
	for attempt := 1; ; attempt++ {
		err := src.Connect(s.ctx)
		if err == nil {
			return nil
		}
		if s.ctx.Err() != nil || attempt >= cfg.ConnectAttempts {
			return err
		}

		delay := backoff.NextDelay()
		s.logger.Warn("Stream connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

// pump 把数据源的消息解码进缓冲区，返回 false 表示流已被关闭
func (s *stream) pump(src interfaces.TransportProtocol, dec audio.Decoder, prebuffer int) bool {
	decodeErrors := 0
	for {
		select {
		case <-s.ctx.Done():
			return false
		case msg, ok := <-src.Receive():
			if !ok {
				return s.ctx.Err() == nil
			}

			switch msg.Type {
			case interfaces.MsgBinary:
				pcm, err := dec.Decode(msg.Payload)
				if err != nil {
					decodeErrors++
					if errors.Is(err, io.EOF) || decodeErrors >= maxDecodeErrors {
						s.logger.Warn("Giving up on undecodable stream", "url", s.url, "error", err)
						return s.ctx.Err() == nil
					}
					s.logger.Debug("Failed to decode audio", "error", err)
					continue
				}
				decodeErrors = 0
				if len(pcm) > 0 && !s.buf.write(pcm) {
					return false
				}
				s.updateBuffering(prebuffer)
			case interfaces.MsgMetadata:
				s.deliverMetadata(msg.Metadata)
			default:
				s.logger.Debug("Ignoring stream message", "type", msg.Type, "size", len(msg.Payload))
			}
		}
	}
}

func (s *stream) updateBuffering(prebuffer int) {
	if s.buf.percent() < prebuffer {
		return
	}
	if !s.ready() {
		s.setStatus(audio.EngineStatusSuccess)
		s.markOpened()
		s.logger.Debug("Stream ready", "url", s.url)
	}
	s.setNet(audio.EngineNetReady)
}

// underrun 由混音 goroutine 在缓冲不足一帧时调用
func (s *stream) underrun() {
	if s.ready() && s.netStatus() == audio.EngineNetReady {
		s.setNet(audio.EngineNetBuffering)
	}
}

func (s *stream) deliverMetadata(fields []interfaces.MetadataField) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()

	if cb == nil {
		return
	}
	for _, f := range fields {
		if !cb(f.Name, f.Value) {
			s.logger.Debug("Metadata field rejected", "name", f.Name)
		}
	}
}
