package engine

import "sync"

// pcmBuffer 有界 PCM 缓冲，写满时阻塞写入方，读取方从不阻塞
type pcmBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	data     []int16
	capacity int
	closed   bool
}

func newPCMBuffer(capacity int) *pcmBuffer {
	b := &pcmBuffer{
		data:     make([]int16, 0, capacity),
		capacity: capacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// write 返回 false 表示缓冲已关闭
func (b *pcmBuffer) write(pcm []int16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(pcm) > 0 {
		for !b.closed && len(b.data) >= b.capacity {
			b.cond.Wait()
		}
		if b.closed {
			return false
		}
		n := min(b.capacity-len(b.data), len(pcm))
		b.data = append(b.data, pcm[:n]...)
		pcm = pcm[n:]
	}
	return true
}

func (b *pcmBuffer) read(out []int16) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.data)
	b.data = b.data[n:]
	if n > 0 {
		b.cond.Broadcast()
	}
	return n
}

// percent 已缓冲占容量的百分比
func (b *pcmBuffer) percent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity == 0 {
		return 100
	}
	return len(b.data) * 100 / b.capacity
}

func (b *pcmBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
