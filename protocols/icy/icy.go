package icy

import (
	"io"
	"strings"

	"github.com/lisuiheng/xiaozhi-radio/pkg/interfaces"
)

// icyReader 每 metaInt 字节音频后跟一个长度字节(×16)和元数据块
type icyReader struct {
	r         io.Reader
	metaInt   int
	remaining int
}

func newICYReader(r io.Reader, metaInt int) *icyReader {
	return &icyReader{r: r, metaInt: metaInt, remaining: metaInt}
}

// next 返回最多 max 字节音频，或者一个元数据块
func (r *icyReader) next(max int) ([]byte, string, error) {
	if r.metaInt > 0 && r.remaining == 0 {
		meta, err := r.readMeta()
		r.remaining = r.metaInt
		return nil, meta, err
	}

	n := max
	if r.metaInt > 0 && r.remaining < n {
		n = r.remaining
	}
	buf := make([]byte, n)
	read, err := r.r.Read(buf)
	if r.metaInt > 0 {
		r.remaining -= read
	}
	return buf[:read], "", err
}

func (r *icyReader) readMeta() (string, error) {
	var length [1]byte
	if _, err := io.ReadFull(r.r, length[:]); err != nil {
		return "", err
	}

	size := int(length[0]) * 16
	if size == 0 {
		return "", nil
	}
	block := make([]byte, size)
	if _, err := io.ReadFull(r.r, block); err != nil {
		return "", err
	}
	return strings.TrimRight(string(block), "\x00"), nil
}

// ParseStreamTitle 把 StreamTitle='Artist - Title';StreamUrl='...'; 拆成字段，
// TITLE 放在最后
func ParseStreamTitle(meta string) []interfaces.MetadataField {
	title, ok := icyValue(meta, "StreamTitle")
	if !ok {
		return nil
	}

	var fields []interfaces.MetadataField
	artist := ""
	if i := strings.Index(title, " - "); i >= 0 {
		artist, title = strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
	}
	fields = append(fields, interfaces.MetadataField{Name: "ARTIST", Value: artist})

	if streamURL, ok := icyValue(meta, "StreamUrl"); ok && streamURL != "" {
		fields = append(fields, interfaces.MetadataField{Name: "STREAMURL", Value: streamURL})
	}
	return append(fields, interfaces.MetadataField{Name: "TITLE", Value: title})
}

func icyValue(meta, key string) (string, bool) {
	prefix := key + "='"
	start := strings.Index(meta, prefix)
	if start < 0 {
		return "", false
	}
	rest := meta[start+len(prefix):]
	end := strings.Index(rest, "';")
	if end < 0 {
		end = strings.LastIndex(rest, "'")
		if end < 0 {
			return "", false
		}
	}
	return rest[:end], true
}
