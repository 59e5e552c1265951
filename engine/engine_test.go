package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lisuiheng/xiaozhi-radio/audio"
	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
)

type fakeSource struct {
	mu       sync.Mutex
	failures int
	block    bool
	connects int
	closed   bool
	msgs     chan interfaces.Message
}

func newFakeSource() *fakeSource {
	return &fakeSource{msgs: make(chan interfaces.Message, 16)}
}

func (f *fakeSource) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	fail := f.connects <= f.failures
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return interfaces.ErrConnectionFailed
	}
	return nil
}

func (f *fakeSource) Receive() <-chan interfaces.Message { return f.msgs }
func (f *fakeSource) ProtocolType() string               { return "fake" }
func (f *fakeSource) Bitrate() int                       { return 128 }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeSource) audio(n int, value byte) {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = value
	}
	f.msgs <- interfaces.Message{Type: interfaces.MsgBinary, Payload: payload}
}

// fakeDecoder 每个字节解码为一个 value*100 的样本
type fakeDecoder struct{}

func (fakeDecoder) Decode(payload []byte) ([]int16, error) {
	pcm := make([]int16, len(payload))
	for i, b := range payload {
		pcm[i] = int16(b) * 100
	}
	return pcm, nil
}

func (fakeDecoder) Close() error { return nil }

type fakeSink struct {
	mu     sync.Mutex
	frames [][]int16
	closed bool
}

func (s *fakeSink) Play(data []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) first() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[0]
}

func testConfig() Config {
	return Config{
		Format:           audio.Format{SampleRate: 8000, Channels: 1},
		FrameDuration:    10 * time.Millisecond,
		BufferDuration:   100 * time.Millisecond,
		PrebufferPercent: 50,
		ConnectAttempts:  3,
		RetryDelay:       time.Millisecond,
		MaxChannels:      2,
	}
}

func newTestEngine(t *testing.T, cfg Config, sources map[string]*fakeSource) (*Engine, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	factory := func(url string) (interfaces.TransportProtocol, error) {
		src, ok := sources[url]
		if !ok {
			return nil, interfaces.ErrUnsupportedProtocol
		}
		return src, nil
	}
	decoders := map[string]DecoderFactory{
		"fake": func(audio.Format) (audio.Decoder, error) { return fakeDecoder{}, nil },
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e, err := New(cfg, sink, factory, decoders, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	return e, sink
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func openReady(t *testing.T, e *Engine, url string, src *fakeSource) audio.Handle {
	t.Helper()
	h, err := e.OpenStream(url, audio.OpenNormal|audio.OpenNonBlocking)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	src.audio(500, 1)
	waitFor(t, "stream ready", func() bool { return e.Status(h) == audio.EngineStatusSuccess })
	return h
}

func TestStreamBecomesReadyAfterPrebuffer(t *testing.T) {
	src := newFakeSource()
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, err := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	waitFor(t, "buffering", func() bool { return e.Status(h) == audio.EngineStatusBuffering })

	// 300 个样本不到缓冲的一半
	src.audio(300, 1)
	time.Sleep(20 * time.Millisecond)
	if e.Status(h) != audio.EngineStatusBuffering {
		t.Fatalf("expected buffering below prebuffer, got %d", e.Status(h))
	}

	src.audio(200, 1)
	waitFor(t, "ready", func() bool { return e.Status(h) == audio.EngineStatusSuccess })

	info := e.NetStatus(h)
	if info.Status != audio.EngineNetReady {
		t.Errorf("expected net ready, got %d", info.Status)
	}
	if info.BufferedPercent != 62 {
		t.Errorf("expected 62%% buffered, got %d", info.BufferedPercent)
	}
	if info.Bitrate != 128 {
		t.Errorf("expected bitrate 128, got %d", info.Bitrate)
	}
}

func TestBlockingOpenWaitsForReady(t *testing.T) {
	src := newFakeSource()
	src.audio(500, 1)
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, err := e.OpenStream("fake://a", audio.OpenNormal)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if e.Status(h) != audio.EngineStatusSuccess {
		t.Errorf("expected ready after blocking open, got %d", e.Status(h))
	}
}

func TestConnectRetriesThenFails(t *testing.T) {
	src := newFakeSource()
	src.failures = 10
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, _ := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)
	waitFor(t, "failed", func() bool { return e.Status(h) == audio.EngineStatusFailed })

	if src.connectCount() != 3 {
		t.Errorf("expected 3 connect attempts, got %d", src.connectCount())
	}
	if e.NetStatus(h).Status != audio.EngineNetError {
		t.Errorf("expected net error, got %d", e.NetStatus(h).Status)
	}
}

func TestConnectRetrySucceeds(t *testing.T) {
	src := newFakeSource()
	src.failures = 2
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, _ := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)
	waitFor(t, "buffering", func() bool { return e.Status(h) == audio.EngineStatusBuffering })

	if src.connectCount() != 3 {
		t.Errorf("expected 3 connect attempts, got %d", src.connectCount())
	}
}

func TestUnknownSourceFails(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), nil)

	h, err := e.OpenStream("gopher://nowhere", audio.OpenNormal|audio.OpenNonBlocking)
	if err != nil {
		t.Fatalf("expected non-blocking open to defer failure, got %v", err)
	}
	waitFor(t, "failed", func() bool { return e.Status(h) == audio.EngineStatusFailed })
}

func TestStreamEnd(t *testing.T) {
	t.Run("before ready", func(t *testing.T) {
		src := newFakeSource()
		e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

		h, _ := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)
		close(src.msgs)
		waitFor(t, "failed", func() bool { return e.Status(h) == audio.EngineStatusFailed })
	})

	t.Run("after ready", func(t *testing.T) {
		src := newFakeSource()
		e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

		h := openReady(t, e, "fake://a", src)
		close(src.msgs)
		waitFor(t, "not connected", func() bool { return e.NetStatus(h).Status == audio.EngineNetNotConnected })
		if e.Status(h) != audio.EngineStatusSuccess {
			t.Errorf("expected open state to stay ready, got %d", e.Status(h))
		}
	})
}

func TestPlayRequiresReady(t *testing.T) {
	src := newFakeSource()
	src.block = true
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, _ := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)
	if _, err := e.Play(h, false); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if _, err := e.Play(audio.Handle(999), false); !errors.Is(err, audio.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestMixerAppliesVolume(t *testing.T) {
	src := newFakeSource()
	e, sink := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})
	h := openReady(t, e, "fake://a", src)

	ch, err := e.Play(h, true)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatalf("expected paused channel to be silent, got %d frames", sink.count())
	}

	e.SetVolume(ch, 128)
	e.SetPaused(ch, false)
	waitFor(t, "mixed frame", func() bool { return sink.count() > 0 })

	frame := sink.first()
	if len(frame) != 80 {
		t.Fatalf("expected 80 samples per frame, got %d", len(frame))
	}
	if frame[0] != 50 {
		t.Errorf("expected sample 50 at volume 128, got %d", frame[0])
	}
}

func TestChannelStealing(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChannels = 1
	a, b := newFakeSource(), newFakeSource()
	e, _ := newTestEngine(t, cfg, map[string]*fakeSource{"fake://a": a, "fake://b": b})

	ha := openReady(t, e, "fake://a", a)
	hb := openReady(t, e, "fake://b", b)

	first, err := e.Play(ha, true)
	if err != nil {
		t.Fatalf("Play a: %v", err)
	}
	if _, err := e.Play(hb, true); !errors.Is(err, ErrNoFreeChannel) {
		t.Fatalf("expected ErrNoFreeChannel, got %v", err)
	}

	e.SetPriority(first, audio.PriorityLowest)
	second, err := e.Play(hb, true)
	if err != nil {
		t.Fatalf("expected low priority channel to be stolen, got %v", err)
	}
	if second == first {
		t.Error("expected channel ids not to be reused")
	}

	e.mu.Lock()
	_, stillThere := e.channels[first]
	e.mu.Unlock()
	if stillThere {
		t.Error("expected stolen channel to be removed")
	}
}

func TestMetadataDeliveredInOrder(t *testing.T) {
	src := newFakeSource()
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, _ := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)

	var (
		mu  sync.Mutex
		got []string
	)
	err := e.SetMetadataCallback(h, func(name, value string) bool {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, name+"="+value)
		return true
	})
	if err != nil {
		t.Fatalf("SetMetadataCallback: %v", err)
	}

	src.msgs <- interfaces.Message{
		Type: interfaces.MsgMetadata,
		Metadata: []interfaces.MetadataField{
			{Name: "ARTIST", Value: "Air"},
			{Name: "TITLE", Value: "La Femme d'Argent"},
		},
	}

	waitFor(t, "metadata", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	if got[0] != "ARTIST=Air" || got[1] != "TITLE=La Femme d'Argent" {
		t.Errorf("unexpected metadata order: %v", got)
	}
}

func TestCloseWhileConnecting(t *testing.T) {
	src := newFakeSource()
	src.block = true
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})

	h, _ := e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)
	waitFor(t, "connecting", func() bool { return e.NetStatus(h).Status == audio.EngineNetConnecting })

	closed := make(chan struct{})
	go func() {
		e.Close(h)
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if e.Status(h) != audio.EngineStatusInvalidHandle {
		t.Errorf("expected invalid handle after close, got %d", e.Status(h))
	}
	e.Close(h)
}

func TestSetModeRejects3D(t *testing.T) {
	src := newFakeSource()
	e, _ := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})
	h := openReady(t, e, "fake://a", src)

	if err := e.SetMode(h, audio.Mode3D); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("expected ErrUnsupportedMode, got %v", err)
	}
	if err := e.SetMode(h, audio.Mode2D); err != nil {
		t.Errorf("expected 2D mode to be accepted, got %v", err)
	}
}

func TestShutdown(t *testing.T) {
	src := newFakeSource()
	src.block = true
	e, sink := newTestEngine(t, testConfig(), map[string]*fakeSource{"fake://a": src})
	e.OpenStream("fake://a", audio.OpenNormal|audio.OpenNonBlocking)

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}
	if _, err := e.OpenStream("fake://a", audio.OpenNonBlocking); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
}

func TestMixInto(t *testing.T) {
	acc := make([]int32, 3)
	mixInto(acc, []int16{30000, -30000, 100}, audio.MaxVolume)
	mixInto(acc, []int16{30000, -30000}, audio.MaxVolume)

	out := make([]int16, 3)
	clip(acc, out)

	want := []int16{32767, -32768, 100}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestPCMBuffer(t *testing.T) {
	b := newPCMBuffer(4)

	done := make(chan bool)
	go func() { done <- b.write([]int16{1, 2, 3, 4, 5, 6}) }()

	out := make([]int16, 4)
	waitFor(t, "buffer full", func() bool { return b.percent() == 100 })
	if n := b.read(out); n != 4 || out[0] != 1 || out[3] != 4 {
		t.Fatalf("unexpected first read %d %v", n, out)
	}

	if ok := <-done; !ok {
		t.Fatal("expected write to complete")
	}
	if n := b.read(out); n != 2 || out[0] != 5 || out[1] != 6 {
		t.Fatalf("unexpected second read %d %v", n, out[:n])
	}

	b.close()
	if b.write([]int16{1}) {
		t.Error("expected write to closed buffer to fail")
	}
}
