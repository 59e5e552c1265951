// protocols/websocket/transport.go
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*WSProtocol)(nil)

// WSProtocol 通过 websocket 接收 OPUS 音频包，文本帧携带曲目信息
type WSProtocol struct {
	conn      *websocket.Conn
	config    Config
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Config 定义websocket特有的配置
type Config struct {
	Server struct {
		URL             string
		ProtocolVersion int
	}
	Auth struct {
		AccessToken string
	}
	Device struct {
		ClientID  string
		UserAgent string
	}
}

func NewWebSocketProtocol(config Config) (*WSProtocol, error) {
	if config.Server.URL == "" {
		return nil, fmt.Errorf("%w: empty websocket url", interfaces.ErrConnectionFailed)
	}
	return &WSProtocol{
		config:    config,
		msgChan:   make(chan interfaces.Message, 100),
		closeChan: make(chan struct{}),
	}, nil
}

func (p *WSProtocol) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	headers := http.Header{}
	if p.config.Auth.AccessToken != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", p.config.Auth.AccessToken))
	}
	headers.Set("Protocol-Version", fmt.Sprintf("%d", p.config.Server.ProtocolVersion))
	if p.config.Device.ClientID != "" {
		headers.Set("Client-Id", p.config.Device.ClientID)
	}
	if p.config.Device.UserAgent != "" {
		headers.Set("User-Agent", p.config.Device.UserAgent)
	}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, p.config.Server.URL, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	p.conn = conn

	go p.readPump(conn)
	return nil
}

func (p *WSProtocol) readPump(conn *websocket.Conn) {
	defer close(p.msgChan)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg := interfaces.Message{
			Payload: data,
			Type:    convertMsgType(msgType),
		}
		if msg.Type == interfaces.MsgText {
			if fields, ok := parseMetadata(data); ok {
				msg.Type = interfaces.MsgMetadata
				msg.Metadata = fields
			}
		}

		select {
		case p.msgChan <- msg:
		case <-p.closeChan:
			return
		}
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

// parseMetadata 解析 {"type":"metadata","artist":"...","title":"..."}。
// TITLE 总是最后一个字段，其余字段按名称排序。
func parseMetadata(data []byte) ([]interfaces.MetadataField, bool) {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msgType, _ := msg["type"].(string); msgType != "metadata" {
		return nil, false
	}

	var (
		fields []interfaces.MetadataField
		title  *interfaces.MetadataField
	)
	for key, value := range msg {
		if key == "type" {
			continue
		}
		text, ok := value.(string)
		if !ok {
			continue
		}
		field := interfaces.MetadataField{Name: strings.ToUpper(key), Value: text}
		if field.Name == "TITLE" {
			title = &field
			continue
		}
		fields = append(fields, field)
	}

	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Name == "ARTIST" {
			return fields[j].Name != "ARTIST"
		}
		if fields[j].Name == "ARTIST" {
			return false
		}
		return fields[i].Name < fields[j].Name
	})
	if title != nil {
		fields = append(fields, *title)
	}
	return fields, true
}

func (p *WSProtocol) Receive() <-chan interfaces.Message {
	return p.msgChan
}

func (p *WSProtocol) ProtocolType() string { return "websocket" }

func (p *WSProtocol) Bitrate() int { return 0 }

func (p *WSProtocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeChan)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.conn != nil {
			err = p.conn.Close()
		}
	})
	return err
}
