// pkg/interfaces/transport.go
package interfaces

import (
	"context"
	"errors"
)

var (
	ErrConnectionFailed    = errors.New("connection failed")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

// TransportProtocol 网络音频流的数据来源
type TransportProtocol interface {
	Connect(ctx context.Context) error
	// Receive 在连接断开或 Close 后关闭
	Receive() <-chan Message
	Close() error
	ProtocolType() string
	// Bitrate 服务端声明的码率(kbps)，未知为 0
	Bitrate() int
}

type Message struct {
	Payload  []byte
	Type     MessageType
	Metadata []MetadataField
}

type MessageType int

const (
	MsgText     MessageType = iota // JSON文本
	MsgBinary                      // 二进制数据（压缩音频）
	MsgControl                     // 控制指令
	MsgMetadata                    // 曲目信息，见 Message.Metadata
)

// MetadataField 按到达顺序传递给引擎回调
type MetadataField struct {
	Name  string
	Value string
}
