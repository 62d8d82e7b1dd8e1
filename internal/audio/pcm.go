package audio

import (
	"encoding/binary"
	"math"
)

const int16Scale = 32768.0

// DecodeS16LE decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func DecodeS16LE(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// DecodeF32LE decodes little-endian float32 PCM. Returns nil if len(data) is not a multiple of 4.
func DecodeF32LE(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Float32ToBytes encodes samples as little-endian float32.
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// ToFloat32 scales 16-bit samples into [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / int16Scale
	}
	return out
}

// ToInt16 converts float samples to 16-bit PCM, clamping out-of-range values.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * int16Scale
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// RMS returns the root mean square of samples, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// Bytes encodes the chunk's samples in their native format.
func (c Chunk) Bytes() []byte {
	if c.Format == S16 {
		return Int16ToBytes(c.Int16)
	}
	return Float32ToBytes(c.Float32)
}

// BytesPerSample returns the encoded width of one sample.
func (f Format) BytesPerSample() int {
	if f == S16 {
		return 2
	}
	return 4
}

// decodeChunk builds a chunk of exactly size samples from raw bytes, zero-padding short input
// and truncating long input.
func decodeChunk(format Format, data []byte, size int) Chunk {
	want := size * format.BytesPerSample()
	if len(data) < want {
		padded := make([]byte, want)
		copy(padded, data)
		data = padded
	}
	data = data[:want]

	if format == S16 {
		return Chunk{Format: S16, Int16: DecodeS16LE(data)}
	}
	return Chunk{Format: F32, Float32: DecodeF32LE(data)}
}
