package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hraban/opus"
)

var _ Decoder = (*OpusDecoder)(nil)

// OpusDecoder OPUS音频解码器
type OpusDecoder struct {
	decoder    *opus.Decoder
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// NewOpusDecoder 创建新的OPUS解码器，输出格式即 format
func NewOpusDecoder(format Format, logger *slog.Logger) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder:    dec,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		logger:     logger,
	}, nil
}

// Decode 解码一个OPUS数据包
func (d *OpusDecoder) Decode(opusData []byte) ([]int16, error) {
	if d.decoder == nil {
		return nil, errors.New("decoder not initialized")
	}

	// OPUS最大帧大小 120ms@48kHz
	maxFrameSize := 5760 * d.channels
	pcm := make([]int16, maxFrameSize)

	n, err := d.decoder.Decode(opusData, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	return pcm[:n*d.channels], nil
}

// Close 释放解码器资源
func (d *OpusDecoder) Close() error {
	d.decoder = nil
	return nil
}
