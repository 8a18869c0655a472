package audio

import (
	"bytes"
	"encoding/binary"
)

func init() {
	Register(MIMEWavPCM, func() Encoder { return &wavEncoder{} })
}

// wavEncoder implements the WAV-PCM fallback candidate: a standard RIFF/
// WAVE header followed by raw interleaved PCM samples, no further
// compression. The header is written once at Begin with zero size
// fields; End does not rewrite it, since bytes already handed to the
// stream cannot be changed. dataLen records the total PCM length.
type wavEncoder struct {
	dataLen uint32
}

func (e *wavEncoder) MIME() string { return MIMEWavPCM }

func (e *wavEncoder) Begin(format PCMFormat, out *bytes.Buffer) error {
	// Placeholder header; sizes are zero until End() knows the total.
	writeWAVHeader(out, format, 0)
	return nil
}

func (e *wavEncoder) Write(pcm []byte, out *bytes.Buffer) error {
	out.Write(pcm)
	e.dataLen += uint32(len(pcm))
	return nil
}

func (e *wavEncoder) End(out *bytes.Buffer) error {
	// The header was already emitted with placeholder sizes at Begin,
	// and the instruction stream doesn't allow rewriting bytes already
	// sent — so End emits nothing further. A non-streaming consumer
	// (one buffering the whole blob before rendering) can still patch
	// the RIFF/data sizes from dataLen if it needs an exact WAV file.
	_ = out
	return nil
}

func writeWAVHeader(out *bytes.Buffer, format PCMFormat, dataLen uint32) {
	byteRate := uint32(format.SampleRateHz * format.Channels * format.BytesPerSample)
	blockAlign := uint16(format.Channels * format.BytesPerSample)
	bitsPerSample := uint16(format.BytesPerSample * 8)

	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, uint32(36+dataLen))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	binary.Write(out, binary.LittleEndian, uint32(16)) // PCM fmt chunk size
	binary.Write(out, binary.LittleEndian, uint16(1))  // PCM format tag
	binary.Write(out, binary.LittleEndian, uint16(format.Channels))
	binary.Write(out, binary.LittleEndian, uint32(format.SampleRateHz))
	binary.Write(out, binary.LittleEndian, byteRate)
	binary.Write(out, binary.LittleEndian, blockAlign)
	binary.Write(out, binary.LittleEndian, bitsPerSample)

	out.WriteString("data")
	binary.Write(out, binary.LittleEndian, dataLen)
}
