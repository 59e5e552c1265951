// protocols/icy/transport.go
package icy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*ICYProtocol)(nil)

const readChunkSize = 4096

// ICYProtocol 通过 HTTP 读取 SHOUTcast/Icecast 流，并拆分内嵌的 ICY 元数据
type ICYProtocol struct {
	config    Config
	client    *http.Client
	body      io.ReadCloser
	metaInt   int
	bitrate   int
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

type Config struct {
	URL         string
	UserAgent   string
	ReadTimeout time.Duration
}

func NewICYProtocol(config Config) (*ICYProtocol, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: empty stream url", interfaces.ErrConnectionFailed)
	}

	client := &http.Client{
		// 流是长连接，不设置整体超时
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: config.ReadTimeout,
			DisableCompression:    true,
		},
	}

	return &ICYProtocol{
		config:    config,
		client:    client,
		msgChan:   make(chan interfaces.Message, 100),
		closeChan: make(chan struct{}),
	}, nil
}

func (p *ICYProtocol) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	req.Header.Set("Icy-MetaData", "1")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("%w: unexpected status %s", interfaces.ErrConnectionFailed, resp.Status)
	}

	p.body = resp.Body
	p.metaInt, _ = strconv.Atoi(resp.Header.Get("icy-metaint"))
	p.bitrate, _ = strconv.Atoi(strings.Split(resp.Header.Get("icy-br"), ",")[0])

	go p.readPump(newICYReader(resp.Body, p.metaInt))
	return nil
}

func (p *ICYProtocol) readPump(r *icyReader) {
	defer close(p.msgChan)
	for {
		chunk, meta, err := r.next(readChunkSize)
		if len(chunk) > 0 {
			if !p.send(interfaces.Message{Payload: chunk, Type: interfaces.MsgBinary}) {
				return
			}
		}
		if meta != "" {
			if fields := ParseStreamTitle(meta); len(fields) > 0 {
				msg := interfaces.Message{Payload: []byte(meta), Type: interfaces.MsgMetadata, Metadata: fields}
				if !p.send(msg) {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *ICYProtocol) send(msg interfaces.Message) bool {
	select {
	case p.msgChan <- msg:
		return true
	case <-p.closeChan:
		return false
	}
}

func (p *ICYProtocol) Receive() <-chan interfaces.Message {
	return p.msgChan
}

func (p *ICYProtocol) ProtocolType() string { return "http" }

func (p *ICYProtocol) Bitrate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitrate
}

func (p *ICYProtocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeChan)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.body != nil {
			err = p.body.Close()
		}
	})
	return err
}
