package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Metadata 流当前播放的曲目信息
type Metadata struct {
	Artist string
	Title  string
}

// MetadataHandler 接收 metadata-updated 事件
type MetadataHandler func(Metadata)

const (
	metadataFieldArtist = "ARTIST"
	metadataFieldTitle  = "TITLE"
)

// Session 一次打开 URL 的尝试，独占持有引擎句柄。
// 句柄关闭后会话失效，不可复用。
type Session struct {
	id     string
	url    string
	engine Engine
	logger *slog.Logger

	handle Handle

	mu       sync.Mutex
	metadata Metadata
	notify   MetadataHandler
}

// OpenSession 向引擎发起非阻塞打开请求，不等待连接建立
func OpenSession(engine Engine, url string, logger *slog.Logger) (*Session, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	s := newSession(engine, url, logger)
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// newSession 创建尚未打开的会话，句柄为 NoHandle
func newSession(engine Engine, url string, logger *slog.Logger) *Session {
	s := &Session{
		id:     uuid.NewString(),
		url:    url,
		engine: engine,
	}
	s.logger = logger.With("session", s.id)
	return s
}

// open 失败时句柄保持 NoHandle，OpenState 报告 Invalid
func (s *Session) open() error {
	h, err := s.engine.OpenStream(s.url, OpenNormal|OpenNonBlocking)
	if err != nil {
		s.logger.Warn("Couldn't open stream", "url", s.url, "error", err)
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if h == NoHandle {
		s.logger.Warn("Engine returned no handle", "url", s.url)
		return ErrOpenFailed
	}

	s.handle = h
	s.logger.Debug("Stream open requested", "url", s.url, "handle", h)
	return nil
}

func (s *Session) ID() string  { return s.id }
func (s *Session) URL() string { return s.url }

// Closed 句柄是否已释放
func (s *Session) Closed() bool { return s.handle == NoHandle }

// OpenState 每次都重新查询引擎，无副作用
func (s *Session) OpenState() OpenState {
	if s.handle == NoHandle {
		return OpenStateInvalid
	}
	return OpenStateOf(s.engine.Status(s.handle))
}

// NetInfo 查询引擎的网络状态
func (s *Session) NetInfo() NetInfo {
	if s.handle == NoHandle {
		return NetInfo{Status: EngineNetNotConnected}
	}
	return s.engine.NetStatus(s.handle)
}

// NetState 网络状态，引擎状态码只在这里转换
func (s *Session) NetState() NetState {
	return NetStateOf(s.NetInfo().Status)
}

// StartPlayback 仅在 Ready 状态下有效，以暂停状态开始播放并返回通道。
// 调用方需保证同一会话不会重复调用。
func (s *Session) StartPlayback() (int, error) {
	if s.handle == NoHandle {
		s.logger.Warn("No internet stream to start playing")
		return NoChannel, fmt.Errorf("%w: %w", ErrPlaybackStartFailed, ErrInvalidHandle)
	}
	if state := s.OpenState(); state != OpenStateReady {
		s.logger.Warn("No internet stream to start playing", "state", state)
		return NoChannel, fmt.Errorf("%w: stream is %s", ErrPlaybackStartFailed, state)
	}

	if err := s.engine.SetMode(s.handle, Mode2D); err != nil {
		return NoChannel, fmt.Errorf("%w: set mode: %v", ErrPlaybackStartFailed, err)
	}
	if err := s.engine.SetMetadataCallback(s.handle, s.onMetadata); err != nil {
		return NoChannel, fmt.Errorf("%w: metadata callback: %v", ErrPlaybackStartFailed, err)
	}

	channel, err := s.engine.Play(s.handle, true)
	if err != nil {
		return NoChannel, fmt.Errorf("%w: %v", ErrPlaybackStartFailed, err)
	}
	if channel < 0 {
		return NoChannel, ErrPlaybackStartFailed
	}
	return channel, nil
}

// RequestClose 引擎仍在连接时返回 false，调用方稍后重试；否则同步关闭。
// 已关闭时直接返回 true。
func (s *Session) RequestClose() bool {
	if s.handle == NoHandle {
		return true
	}

	if s.NetState() == NetStateConnecting {
		return false
	}

	s.engine.Close(s.handle)
	s.handle = NoHandle
	return true
}

// Metadata 返回最近一次收到的曲目信息
func (s *Session) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

func (s *Session) setNotify(fn MetadataHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// onMetadata 在引擎的 goroutine 中被调用
func (s *Session) onMetadata(name, value string) bool {
	switch name {
	case metadataFieldArtist:
		s.mu.Lock()
		s.metadata.Artist = value
		s.mu.Unlock()
		s.logger.Debug("Got new artist, waiting on new title", "artist", value)
	case metadataFieldTitle:
		s.mu.Lock()
		s.metadata.Title = value
		md, notify := s.metadata, s.notify
		s.mu.Unlock()

		if notify != nil {
			notify(md)
		}
	}
	return true
}
