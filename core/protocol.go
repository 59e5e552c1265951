package core

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lisuiheng/xiaozhi-radio/audio"
	"github.com/lisuiheng/xiaozhi-radio/engine"
	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
	"github.com/lisuiheng/xiaozhi-radio/protocols/icy"
	"github.com/lisuiheng/xiaozhi-radio/protocols/websocket"
)

// NewSource 根据 URL 的 scheme 创建对应的协议实例
func NewSource(rawURL string, config Config) (interfaces.TransportProtocol, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedProtocol, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return icy.NewICYProtocol(icy.Config{
			URL:         rawURL,
			UserAgent:   config.Network.UserAgent,
			ReadTimeout: config.Network.ReadTimeout,
		})
	case "ws", "wss":
		var wsConfig websocket.Config
		wsConfig.Server.URL = rawURL
		wsConfig.Server.ProtocolVersion = 1
		wsConfig.Auth.AccessToken = config.Network.AccessToken
		wsConfig.Device.ClientID = uuid.NewString()
		wsConfig.Device.UserAgent = config.Network.UserAgent
		return websocket.NewWebSocketProtocol(wsConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, u.Scheme)
	}
}

// newDecoders 按协议类型选择解码器：HTTP 电台是 MP3，websocket 推送 OPUS 包
func newDecoders(log *slog.Logger) map[string]engine.DecoderFactory {
	return map[string]engine.DecoderFactory{
		"http": func(format audio.Format) (audio.Decoder, error) {
			return audio.NewMP3Decoder(format, log)
		},
		"websocket": func(format audio.Format) (audio.Decoder, error) {
			return audio.NewOpusDecoder(format, log)
		},
	}
}

// newSink 打开音频输出设备
func newSink(config Config, log *slog.Logger) (audio.AudioPlayer, error) {
	switch config.Audio.Backend {
	case "", "portaudio":
		return audio.NewPCMPlayer(config.Audio.SampleRate, config.Audio.FrameDuration, config.Audio.Channels, log)
	case "malgo":
		return audio.NewDevicePlayer(audio.Format{
			SampleRate: config.Audio.SampleRate,
			Channels:   config.Audio.Channels,
		}, config.Audio.FrameDuration, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, config.Audio.Backend)
	}
}

func engineConfig(config Config) engine.Config {
	return engine.Config{
		Format: audio.Format{
			SampleRate: config.Audio.SampleRate,
			Channels:   config.Audio.Channels,
		},
		FrameDuration:    time.Duration(config.Audio.FrameDuration) * time.Millisecond,
		BufferDuration:   time.Duration(config.Audio.BufferMS) * time.Millisecond,
		PrebufferPercent: config.Network.PrebufferPercent,
		ConnectAttempts:  config.Network.ConnectAttempts,
		MaxChannels:      config.Audio.MaxChannels,
	}
}
