// audio/interface.go
package audio

// Handle 流媒体引擎中的不透明句柄，NoHandle 表示未打开
type Handle uint64

const NoHandle Handle = 0

// NoChannel 表示尚未分配混音通道
const NoChannel = -1

// OpenFlags 打开流时的选项
type OpenFlags uint32

const (
	OpenNormal      OpenFlags = 1 << iota // 普通流
	OpenNonBlocking                       // 非阻塞打开，立即返回
)

// Mode 播放模式
type Mode int

const (
	Mode2D Mode = iota // 非定位播放
	Mode3D
)

// 混音通道优先级范围
const (
	PriorityLowest  = 0
	PriorityDefault = 128
	PriorityHighest = 255
)

// MaxVolume 引擎整数音量上限
const MaxVolume = 255

// MetadataCallback 由引擎在自己的 goroutine 中调用，返回值表示是否接受该字段
type MetadataCallback func(name, value string) bool

// NetInfo 引擎报告的网络状态
type NetInfo struct {
	Status          EngineNetStatus
	BufferedPercent int
	Bitrate         int // kbps
	Flags           uint32
}

// Engine 定义外部流媒体引擎接口
type Engine interface {
	OpenStream(url string, flags OpenFlags) (Handle, error)
	Status(h Handle) EngineStatus
	NetStatus(h Handle) NetInfo
	SetMode(h Handle, mode Mode) error
	SetMetadataCallback(h Handle, cb MetadataCallback) error
	// Play 在空闲通道上播放，paused 为 true 时以暂停状态启动
	Play(h Handle, paused bool) (int, error)
	Close(h Handle)
	SetVolume(channel int, volume int)
	SetPaused(channel int, paused bool)
	SetPriority(channel int, priority int)
}

// AudioPlayer 音频播放器接口
type AudioPlayer interface {
	Play(data []int16) error
	Close() error
}

// Decoder 将压缩音频负载解码为交错的 int16 PCM
type Decoder interface {
	Decode(payload []byte) ([]int16, error)
	Close() error
}

// Format PCM 输出格式
type Format struct {
	SampleRate int
	Channels   int
}
