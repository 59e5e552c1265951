package audio

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

// fakeEngine 可脚本化的引擎，状态由测试直接设置
type fakeEngine struct {
	mu sync.Mutex

	nextHandle Handle
	openErr    error
	urls       map[Handle]string
	status     map[Handle]EngineStatus
	net        map[Handle]EngineNetStatus
	closed     map[Handle]bool
	closeCalls []Handle

	modes     map[Handle]Mode
	callbacks map[Handle]MetadataCallback

	playChannel int
	playErr     error
	playCalls   int

	volumes  map[int]int
	paused   map[int]bool
	priority map[int]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		urls:        make(map[Handle]string),
		status:      make(map[Handle]EngineStatus),
		net:         make(map[Handle]EngineNetStatus),
		closed:      make(map[Handle]bool),
		modes:       make(map[Handle]Mode),
		callbacks:   make(map[Handle]MetadataCallback),
		playChannel: 7,
		volumes:     make(map[int]int),
		paused:      make(map[int]bool),
		priority:    make(map[int]int),
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (e *fakeEngine) OpenStream(url string, flags OpenFlags) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openErr != nil {
		return NoHandle, e.openErr
	}
	e.nextHandle++
	h := e.nextHandle
	e.urls[h] = url
	e.status[h] = EngineStatusOpening
	e.net[h] = EngineNetConnecting
	return h, nil
}

func (e *fakeEngine) Status(h Handle) EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed[h] {
		return EngineStatusInvalidHandle
	}
	status, ok := e.status[h]
	if !ok {
		return EngineStatusInvalidHandle
	}
	return status
}

func (e *fakeEngine) NetStatus(h Handle) NetInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NetInfo{Status: e.net[h]}
}

func (e *fakeEngine) SetMode(h Handle, mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modes[h] = mode
	return nil
}

func (e *fakeEngine) SetMetadataCallback(h Handle, cb MetadataCallback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[h] = cb
	return nil
}

func (e *fakeEngine) Play(h Handle, paused bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.playCalls++
	if e.playErr != nil {
		return NoChannel, e.playErr
	}
	if e.status[h] != EngineStatusSuccess || e.closed[h] {
		return NoChannel, errors.New("not ready")
	}
	e.paused[e.playChannel] = paused
	e.volumes[e.playChannel] = MaxVolume
	return e.playChannel, nil
}

func (e *fakeEngine) Close(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed[h] = true
	e.closeCalls = append(e.closeCalls, h)
}

func (e *fakeEngine) SetVolume(channel int, volume int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volumes[channel] = volume
}

func (e *fakeEngine) SetPaused(channel int, paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused[channel] = paused
}

func (e *fakeEngine) SetPriority(channel int, priority int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priority[channel] = priority
}

// 测试辅助方法

func (e *fakeEngine) setStatus(h Handle, status EngineStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status[h] = status
}

func (e *fakeEngine) setNet(h Handle, status EngineNetStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.net[h] = status
}

func (e *fakeEngine) isClosed(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed[h]
}

func (e *fakeEngine) plays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playCalls
}

func (e *fakeEngine) closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.closeCalls)
}

func (e *fakeEngine) callback(h Handle) MetadataCallback {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callbacks[h]
}

func (e *fakeEngine) lastHandle() Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextHandle
}
