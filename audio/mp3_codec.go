package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/go-mp3"
)

var ErrDecoderClosed = errors.New("decoder closed")

var _ Decoder = (*MP3Decoder)(nil)

// MP3Decoder 流式MP3解码器。go-mp3 是拉取式的，
// 负载通过管道喂给后台 goroutine，解码结果从 out 取回。
type MP3Decoder struct {
	format Format
	logger *slog.Logger

	in  chan []byte
	out chan []int16
	pr  *io.PipeReader
	pw  *io.PipeWriter

	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewMP3Decoder 输出会被转换为 format
func NewMP3Decoder(format Format, logger *slog.Logger) (*MP3Decoder, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid output format: %+v", format)
	}

	pr, pw := io.Pipe()
	d := &MP3Decoder{
		format: format,
		logger: logger,
		in:     make(chan []byte, 16),
		out:    make(chan []int16, 16),
		pr:     pr,
		pw:     pw,
		done:   make(chan struct{}),
	}

	go d.feedLoop()
	go d.decodeLoop()
	return d, nil
}

func (d *MP3Decoder) feedLoop() {
	for {
		select {
		case <-d.done:
			return
		case payload := <-d.in:
			if _, err := d.pw.Write(payload); err != nil {
				return
			}
		}
	}
}

func (d *MP3Decoder) decodeLoop() {
	defer close(d.out)

	dec, err := mp3.NewDecoder(d.pr)
	if err != nil {
		d.fail(fmt.Errorf("mp3 header: %w", err))
		return
	}

	source := Format{SampleRate: dec.SampleRate(), Channels: 2}
	d.logger.Debug("MP3 stream detected", "sample_rate", source.SampleRate)

	buf := make([]byte, 4608)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm := Convert(bytesToInt16(buf[:n]), source, d.format)
			select {
			case d.out <- pcm:
			case <-d.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				d.fail(fmt.Errorf("mp3 decode failed: %w", err))
			}
			return
		}
	}
}

func (d *MP3Decoder) fail(err error) {
	d.errMu.Lock()
	d.err = err
	d.errMu.Unlock()
	d.pr.CloseWithError(err)
}

func (d *MP3Decoder) lastErr() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.err != nil {
		return d.err
	}
	return io.EOF
}

// Decode 写入压缩数据并返回当前可用的 PCM，可能为空
func (d *MP3Decoder) Decode(payload []byte) ([]int16, error) {
	data := make([]byte, len(payload))
	copy(data, payload)

	var pcm []int16
	for sent := false; !sent; {
		select {
		case <-d.done:
			return pcm, ErrDecoderClosed
		case d.in <- data:
			sent = true
		case frame, ok := <-d.out:
			if !ok {
				return pcm, d.lastErr()
			}
			pcm = append(pcm, frame...)
		}
	}

	for {
		select {
		case frame, ok := <-d.out:
			if !ok {
				return pcm, d.lastErr()
			}
			pcm = append(pcm, frame...)
		default:
			return pcm, nil
		}
	}
}

func (d *MP3Decoder) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.pr.Close()
		d.pw.Close()
	})
	return nil
}
