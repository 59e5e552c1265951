package audio

import "encoding/binary"

// bytesToInt16 将小端字节切片转换为int16切片
func bytesToInt16(b []byte) []int16 {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}

	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return pcm
}

// Convert 转换声道数（下混取平均、上混复制）并以最近邻方式重采样
func Convert(pcm []int16, from, to Format) []int16 {
	if from == to || from.Channels <= 0 || to.Channels <= 0 {
		return pcm
	}

	frames := len(pcm) / from.Channels
	mixed := pcm[:frames*from.Channels]

	if from.Channels != to.Channels {
		mixed = make([]int16, frames*to.Channels)
		for i := 0; i < frames; i++ {
			src := pcm[i*from.Channels : (i+1)*from.Channels]
			dst := mixed[i*to.Channels : (i+1)*to.Channels]

			if to.Channels == 1 {
				var sum int
				for _, s := range src {
					sum += int(s)
				}
				dst[0] = int16(sum / len(src))
				continue
			}
			for c := range dst {
				dst[c] = src[min(c, len(src)-1)]
			}
		}
	}

	if from.SampleRate == to.SampleRate || from.SampleRate <= 0 || to.SampleRate <= 0 {
		return mixed
	}

	ch := to.Channels
	outFrames := int(int64(frames) * int64(to.SampleRate) / int64(from.SampleRate))
	out := make([]int16, outFrames*ch)
	for i := 0; i < outFrames; i++ {
		src := int(int64(i) * int64(from.SampleRate) / int64(to.SampleRate))
		copy(out[i*ch:(i+1)*ch], mixed[src*ch:(src+1)*ch])
	}
	return out
}
