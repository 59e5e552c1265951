package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 对应 config.yaml 的结构
type Config struct {
	Stream struct {
		URL       string  `mapstructure:"url"`
		Gain      float32 `mapstructure:"gain"`
		FrameRate int     `mapstructure:"frame_rate"` // 每秒调用 Update 的次数
		AutoStart bool    `mapstructure:"auto_start"`
	} `mapstructure:"stream"`

	Audio struct {
		Backend       string `mapstructure:"backend"` // portaudio / malgo
		SampleRate    int    `mapstructure:"sample_rate"`
		Channels      int    `mapstructure:"channels"`
		FrameDuration int    `mapstructure:"frame_duration"` // ms
		BufferMS      int    `mapstructure:"buffer_ms"`
		MaxChannels   int    `mapstructure:"max_channels"`
	} `mapstructure:"audio"`

	Network struct {
		ConnectAttempts  int           `mapstructure:"connect_attempts"`
		PrebufferPercent int           `mapstructure:"prebuffer_percent"`
		UserAgent        string        `mapstructure:"user_agent"`
		AccessToken      string        `mapstructure:"access_token"`
		ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	} `mapstructure:"network"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Address string `mapstructure:"address"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	// 所有键都需要默认值，AutomaticEnv 才能在 Unmarshal 时生效
	v.SetDefault("stream.url", "")
	v.SetDefault("stream.gain", 1.0)
	v.SetDefault("stream.frame_rate", 30)
	v.SetDefault("stream.auto_start", true)

	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.frame_duration", 20)
	v.SetDefault("audio.buffer_ms", 2000)
	v.SetDefault("audio.max_channels", 4)

	v.SetDefault("network.connect_attempts", 3)
	v.SetDefault("network.prebuffer_percent", 50)
	v.SetDefault("network.user_agent", "xiaozhi-radio/1.0")
	v.SetDefault("network.access_token", "")
	v.SetDefault("network.read_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.outputs", []string{"stdout"})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
}

// LoadConfig 读取配置文件。configPath 为空时按默认路径搜索，找不到文件时只使用默认值和环境变量。
func LoadConfig(configPath string) (Config, error) {
	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("XIAOZHI_RADIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/xiaozhi-radio")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c Config) Validate() error {
	switch {
	case c.Stream.Gain < 0 || c.Stream.Gain > 1:
		return fmt.Errorf("%w: stream.gain must be within [0,1], got %v", ErrInvalidConfig, c.Stream.Gain)
	case c.Stream.FrameRate <= 0:
		return fmt.Errorf("%w: stream.frame_rate must be positive", ErrInvalidConfig)
	case c.Audio.Backend != "portaudio" && c.Audio.Backend != "malgo":
		return fmt.Errorf("%w: unknown audio backend %q", ErrInvalidConfig, c.Audio.Backend)
	case c.Audio.SampleRate <= 0 || c.Audio.Channels <= 0 || c.Audio.Channels > 2:
		return fmt.Errorf("%w: unsupported audio format %d Hz x %d", ErrInvalidConfig, c.Audio.SampleRate, c.Audio.Channels)
	case c.Audio.FrameDuration <= 0 || c.Audio.BufferMS < c.Audio.FrameDuration:
		return fmt.Errorf("%w: buffer_ms must hold at least one frame", ErrInvalidConfig)
	case c.Network.PrebufferPercent < 0 || c.Network.PrebufferPercent > 100:
		return fmt.Errorf("%w: network.prebuffer_percent must be within [0,100]", ErrInvalidConfig)
	}
	return nil
}
