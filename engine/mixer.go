package engine

import (
	"math"
	"time"

	"github.com/lisuiheng/xiaozhi-radio/audio"
)

type voice struct {
	stream *stream
	volume int
}

func (e *Engine) mixLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.FrameDuration)
	defer ticker.Stop()

	frame := e.config.samples(e.config.FrameDuration)
	acc := make([]int32, frame)
	scratch := make([]int16, frame)

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mixFrame(acc, scratch)
		}
	}
}

// mixFrame 从每个未暂停的通道取一帧，按音量叠加后写入输出
func (e *Engine) mixFrame(acc []int32, scratch []int16) {
	e.mu.Lock()
	voices := make([]voice, 0, len(e.channels))
	for _, ch := range e.channels {
		if !ch.paused {
			voices = append(voices, voice{stream: ch.stream, volume: ch.volume})
		}
	}
	e.mu.Unlock()

	if len(voices) == 0 {
		return
	}

	clear(acc)
	for _, v := range voices {
		n := v.stream.buf.read(scratch)
		if n < len(scratch) {
			v.stream.underrun()
		}
		mixInto(acc, scratch[:n], v.volume)
	}

	out := make([]int16, len(acc))
	clip(acc, out)
	if err := e.sink.Play(out); err != nil {
		e.logger.Debug("Dropped mixed frame", "error", err)
	}
}

func mixInto(acc []int32, pcm []int16, volume int) {
	for i, s := range pcm {
		acc[i] += int32(s) * int32(volume) / audio.MaxVolume
	}
}

func clip(acc []int32, out []int16) {
	for i, v := range acc {
		switch {
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		case v < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v)
		}
	}
}
