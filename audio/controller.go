// audio/controller.go
package audio

import (
	"log/slog"
	"math"
	"sync"

	"github.com/lisuiheng/xiaozhi-radio/metrics"
)

// Controller 定义网络音频流控制接口
type Controller interface {
	Start(url string)
	Stop()
	Update()
	PauseResume(opt PauseOption)
	PlaybackStatus() PlaybackStatus
	SetGain(v float32)
	Gain() float32
	URL() string
	OnMetadata(fn MetadataHandler)
	Shutdown()
}

var _ Controller = (*StreamController)(nil)

type closeState int

const (
	closePending closeState = iota
	closeDone
)

// pendingClose 第一次关闭时仍在连接中的会话
type pendingClose struct {
	session  *Session
	state    closeState
	attempts int
}

func (p *pendingClose) retry() closeState {
	p.attempts++
	if p.session.RequestClose() {
		p.state = closeDone
	}
	return p.state
}

// StreamController 全局唯一活动流的协调者，每帧调用一次 Update
type StreamController struct {
	mu         sync.Mutex
	engine     Engine
	logger     *slog.Logger
	metrics    *metrics.Metrics
	active     *Session
	pending    []*pendingClose
	currentURL string
	gain       float32
	channel    int

	handlersMu sync.RWMutex
	handlers   []MetadataHandler
}

// Option 配置 StreamController
type Option func(*StreamController)

// WithMetrics 记录 Prometheus 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *StreamController) { c.metrics = m }
}

// WithGain 设置初始音量
func WithGain(v float32) Option {
	return func(c *StreamController) { c.gain = v }
}

// NewStreamController 创建新的流控制器实例
func NewStreamController(engine Engine, logger *slog.Logger, opts ...Option) *StreamController {
	c := &StreamController{
		engine:  engine,
		logger:  logger.With("component", "stream"),
		gain:    1.0,
		channel: NoChannel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.SetGain(float64(c.gain))
	return c
}

// Start 停止当前流（保留 URL），然后为 url 打开新会话。不会阻塞在网络 I/O 上。
func (c *StreamController) Start(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start(url)
}

func (c *StreamController) start(url string) {
	c.stop()

	if url == "" {
		c.logger.Info("Set internet stream to null")
		c.currentURL = ""
		return
	}

	c.logger.Info("Starting internet stream", "url", url)
	c.currentURL = url

	// 打开失败也保留会话，下一帧 Update 看到 Invalid 后停止
	session := newSession(c.engine, url, c.logger)
	if err := session.open(); err != nil {
		c.logger.Warn("Failed to open internet stream", "url", url, "error", err)
		c.metrics.OpenFailed("open")
	}
	session.setNotify(c.dispatchMetadata)
	c.active = session
	c.metrics.StreamStarted()
	c.metrics.SetActive(true)
}

// Update 每帧调用：回收待关闭会话，推进活动会话状态
func (c *StreamController) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retire()

	if c.active == nil {
		return
	}

	state := c.active.OpenState()

	if state == OpenStateReady && c.channel < 0 {
		channel, err := c.active.StartPlayback()
		if err != nil {
			c.logger.Warn("Failed to start stream playback", "url", c.active.URL(), "error", err)
			c.metrics.PlaybackFailed()
		} else {
			c.channel = channel
			// 恢复之前设置的音量后再取消静音
			c.applyGain()
			c.engine.SetPaused(channel, false)
			c.logger.Info("Internet stream playing", "url", c.active.URL(), "channel", channel)
			c.metrics.PlaybackStarted()
		}
	}

	switch state {
	case OpenStateInvalid:
		c.logger.Warn("Internet stream handle is invalid", "url", c.active.URL())
		c.metrics.OpenFailed("invalid_handle")
		c.stop()
		return
	case OpenStateFailedOpen:
		c.logger.Warn("Internet stream failed to open", "url", c.active.URL())
		c.metrics.OpenFailed("failed_open")
		c.stop()
		return
	case OpenStateOpening, OpenStateConnecting, OpenStateBuffering:
		// 等待下一帧
	}
}

// retire 按插入顺序重试关闭待关闭会话
func (c *StreamController) retire() {
	if len(c.pending) == 0 {
		return
	}

	remaining := c.pending[:0]
	for _, p := range c.pending {
		if p.retry() == closeDone {
			c.logger.Info("Closed dead stream", "url", p.session.URL(), "attempts", p.attempts)
			c.metrics.SessionRetired()
			continue
		}
		remaining = append(remaining, p)
	}
	for i := len(remaining); i < len(c.pending); i++ {
		c.pending[i] = nil
	}
	c.pending = remaining
	c.metrics.SetPendingCloses(len(c.pending))
}

// Stop 静音并释放当前通道，关闭活动会话；无法立即关闭时移入待关闭列表。
// 不清除 currentURL。
func (c *StreamController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop()
}

func (c *StreamController) stop() {
	if c.channel != NoChannel {
		c.engine.SetPaused(c.channel, true)
		c.engine.SetPriority(c.channel, PriorityLowest)
		c.channel = NoChannel
	}

	if c.active == nil {
		return
	}

	session := c.active
	c.active = nil
	c.metrics.SetActive(false)

	c.logger.Info("Stopping internet stream", "url", session.URL())
	if session.RequestClose() {
		return
	}

	c.logger.Warn("Pushing stream to dead list", "url", session.URL(), "reason", ErrCloseDeferred)
	c.pending = append(c.pending, &pendingClose{session: session, state: closePending, attempts: 1})
	c.metrics.CloseDeferred()
	c.metrics.SetPendingCloses(len(c.pending))
}

// PauseResume 暂停时停止流但保留 URL，恢复时重新打开 currentURL
func (c *StreamController) PauseResume(opt PauseOption) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if opt == PauseToggle {
		if c.active != nil {
			opt = Pause
		} else {
			opt = Resume
		}
	}

	if opt == Pause {
		if c.active != nil {
			c.stop()
		}
		return
	}
	c.start(c.currentURL)
}

// PlaybackStatus 有活动会话即为 Active，即使音频尚未输出
func (c *StreamController) PlaybackStatus() PlaybackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.active != nil:
		return PlaybackActive
	case c.currentURL != "":
		return PlaybackPaused
	default:
		return PlaybackStopped
	}
}

// SetGain 保存音量；若通道已在播放则立即生效
func (c *StreamController) SetGain(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gain = v
	c.metrics.SetGain(float64(v))
	c.applyGain()
}

func (c *StreamController) applyGain() {
	if c.channel == NoChannel {
		return
	}
	c.engine.SetVolume(c.channel, EngineVolume(c.gain))
}

// EngineVolume 将 [0,1] 的音量按平方曲线映射到引擎整数音量
func EngineVolume(gain float32) int {
	v := float64(gain) * float64(gain)
	v = math.Max(0, math.Min(1, v))
	return int(math.Round(v * MaxVolume))
}

func (c *StreamController) Gain() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

// URL 最近一次请求的 URL，暂停时仍保留
func (c *StreamController) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentURL
}

// NowPlaying 当前活动会话最近的曲目信息
func (c *StreamController) NowPlaying() (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Metadata{}, false
	}
	return c.active.Metadata(), true
}

// OnMetadata 订阅 metadata-updated 事件，回调在引擎 goroutine 中执行
func (c *StreamController) OnMetadata(fn MetadataHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *StreamController) dispatchMetadata(md Metadata) {
	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(md)
	}
}

// Shutdown 停止播放并回收一次待关闭会话，仍在连接中的会话不会阻塞退出
func (c *StreamController) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop()
	c.retire()
	if len(c.pending) > 0 {
		c.logger.Warn("Abandoning streams still connecting", "count", len(c.pending))
	}
}

// Pending 待关闭会话数量
func (c *StreamController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Channel 当前播放通道，未播放时为 NoChannel
func (c *StreamController) Channel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}
