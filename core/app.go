package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lisuiheng/xiaozhi-radio/audio"
	"github.com/lisuiheng/xiaozhi-radio/engine"
	"github.com/lisuiheng/xiaozhi-radio/metrics"
	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// StreamEngine 可关闭的音频引擎
type StreamEngine interface {
	audio.Engine
	Shutdown() error
}

// App 把配置、引擎、流控制器和指标组装在一起
type App struct {
	config     Config
	logger     *slog.Logger
	engine     StreamEngine
	controller *audio.StreamController
	registry   *prometheus.Registry
	closeChan  chan struct{}
	closeOnce  sync.Once
}

// Status 包含播放器状态信息
type Status struct {
	URL        string
	Playback   audio.PlaybackStatus
	Gain       float32
	NowPlaying audio.Metadata
	Pending    int
}

// NewApp 打开音频输出并创建引擎
func NewApp(cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	sink, err := newSink(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio player: %w", err)
	}

	sources := func(url string) (interfaces.TransportProtocol, error) {
		return NewSource(url, cfg)
	}
	eng, err := engine.New(engineConfig(cfg), sink, sources, newDecoders(log), log)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to create stream engine: %w", err)
	}

	return NewAppWithEngine(cfg, eng, log)
}

// NewAppWithEngine 使用已创建的引擎，App 关闭时会一并关闭引擎
func NewAppWithEngine(cfg Config, eng StreamEngine, log *slog.Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		config:   cfg,
		logger:   log,
		engine:   eng,
		registry: registry,
		controller: audio.NewStreamController(eng, log,
			audio.WithMetrics(metrics.NewMetrics(registry)),
			audio.WithGain(cfg.Stream.Gain)),
		closeChan: make(chan struct{}),
	}
	a.controller.OnMetadata(a.nowPlaying)
	return a, nil
}

// Run 按 frame_rate 驱动流控制器，直到 ctx 取消或 Close
func (a *App) Run(ctx context.Context) error {
	select {
	case <-a.closeChan:
		return ErrAppClosed
	default:
	}

	a.logger.Info("Starting radio main loop", "frame_rate", a.config.Stream.FrameRate)
	defer a.logger.Info("Radio main loop stopped")

	if a.config.Stream.AutoStart && a.config.Stream.URL != "" {
		a.controller.Start(a.config.Stream.URL)
	}

	ticker := time.NewTicker(time.Second / time.Duration(max(1, a.config.Stream.FrameRate)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Context cancelled, stopping radio")
			return nil
		case <-a.closeChan:
			a.logger.Info("Close signal received, stopping radio")
			return nil
		case <-ticker.C:
			a.controller.Update()
		}
	}
}

// Controller 供命令行等前端直接操作
func (a *App) Controller() *audio.StreamController {
	return a.controller
}

// Registry 指标注册表，用于 /metrics
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) Status() Status {
	md, _ := a.controller.NowPlaying()
	return Status{
		URL:        a.controller.URL(),
		Playback:   a.controller.PlaybackStatus(),
		Gain:       a.controller.Gain(),
		NowPlaying: md,
		Pending:    a.controller.Pending(),
	}
}

// nowPlaying 在引擎 goroutine 中执行，不能回调控制器
func (a *App) nowPlaying(md audio.Metadata) {
	a.logger.Info("Now playing", "artist", md.Artist, "title", md.Title)
}

// Close 停止播放，仍在连接的流交给引擎的 Shutdown 处理
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.logger.Info("Closing radio")
		close(a.closeChan)

		a.controller.Shutdown()
		if err = a.engine.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down stream engine", "error", err)
		}
		a.logger.Info("Radio closed")
	})
	return err
}
