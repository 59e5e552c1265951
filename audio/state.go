package audio

// EngineStatus 引擎返回的原始打开状态码
type EngineStatus int

const (
	EngineStatusSuccess       EngineStatus = 0
	EngineStatusInvalidHandle EngineStatus = -1
	EngineStatusOpening       EngineStatus = -2
	EngineStatusFailed        EngineStatus = -3
	EngineStatusConnecting    EngineStatus = -4
	EngineStatusBuffering     EngineStatus = -5
)

// EngineNetStatus 引擎返回的原始网络状态码
type EngineNetStatus int

const (
	EngineNetNotConnected EngineNetStatus = iota
	EngineNetConnecting
	EngineNetBuffering
	EngineNetReady
	EngineNetError
)

// OpenState 会话的打开状态
type OpenState string

const (
	OpenStateUnknown    OpenState = "unknown"
	OpenStateOpening    OpenState = "opening"
	OpenStateConnecting OpenState = "connecting"
	OpenStateBuffering  OpenState = "buffering"
	OpenStateReady      OpenState = "ready"
	OpenStateInvalid    OpenState = "invalid"
	OpenStateFailedOpen OpenState = "failed_open"
)

// OpenStateOf 在边界处把引擎状态码转换为 OpenState
func OpenStateOf(code EngineStatus) OpenState {
	switch code {
	case EngineStatusSuccess:
		return OpenStateReady
	case EngineStatusInvalidHandle:
		return OpenStateInvalid
	case EngineStatusOpening:
		return OpenStateOpening
	case EngineStatusFailed:
		return OpenStateFailedOpen
	case EngineStatusConnecting:
		return OpenStateConnecting
	case EngineStatusBuffering:
		return OpenStateBuffering
	default:
		return OpenStateUnknown
	}
}

// NetState 网络连接状态
type NetState string

const (
	NetStateNotConnected NetState = "not_connected"
	NetStateConnecting   NetState = "connecting"
	NetStateBuffering    NetState = "buffering"
	NetStateReady        NetState = "ready"
	NetStateError        NetState = "error"
)

func NetStateOf(code EngineNetStatus) NetState {
	switch code {
	case EngineNetConnecting:
		return NetStateConnecting
	case EngineNetBuffering:
		return NetStateBuffering
	case EngineNetReady:
		return NetStateReady
	case EngineNetError:
		return NetStateError
	default:
		return NetStateNotConnected
	}
}

// PlaybackStatus 控制器对外的播放状态
type PlaybackStatus int

const (
	PlaybackStopped PlaybackStatus = iota
	PlaybackActive
	PlaybackPaused
)

func (s PlaybackStatus) String() string {
	switch s {
	case PlaybackActive:
		return "active"
	case PlaybackPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// PauseOption 控制 PauseResume 的行为
type PauseOption int

const (
	PauseToggle PauseOption = -1 // 根据当前是否有活动会话切换
	Resume      PauseOption = 0
	Pause       PauseOption = 1
)
