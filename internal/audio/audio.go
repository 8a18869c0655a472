// Package audio implements the PCM-to-encoded-frame pump described in
// spec §4.7 (C7): a pluggable encoder contract selected by MIME-type
// negotiation against what the client advertised at connect time.
package audio

import (
	"bytes"
	"fmt"
	"sync"
)

// MIME type identifiers advertised during handshake (spec §6).
const (
	MIMEOggVorbis = "audio/ogg"
	MIMEWavPCM    = "audio/L16"
)

// candidatePriority is the fixed negotiation order named in spec §4.7:
// Ogg Vorbis first, then WAV-PCM.
var candidatePriority = []string{MIMEOggVorbis, MIMEWavPCM}

// PCMFormat describes the raw input stream's layout, fixed at creation
// time (spec §4.7).
type PCMFormat struct {
	Channels      int
	SampleRateHz  int
	BytesPerSample int
}

// Encoder is the three-callback contract named in spec §4.7. Begin
// emits container headers, Write converts interleaved PCM to encoded
// bytes, End flushes trailing frames. All three append to the same
// output buffer across the stream's lifetime.
type Encoder interface {
	MIME() string
	Begin(format PCMFormat, out *bytes.Buffer) error
	Write(pcm []byte, out *bytes.Buffer) error
	End(out *bytes.Buffer) error
}

// Factory builds a fresh Encoder instance for one stream.
type Factory func() Encoder

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register installs a Factory for the given MIME type. Called from each
// codec file's init().
func Register(mime string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[mime] = factory
}

// Negotiate picks the first registered candidate, in priority order,
// whose MIME type also appears in the client's advertised list. It
// returns ok=false if none match — per spec §4.7, audio is then
// silently disabled rather than treated as an error.
func Negotiate(clientMimeTypes []string) (Encoder, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	advertised := make(map[string]bool, len(clientMimeTypes))
	for _, m := range clientMimeTypes {
		advertised[m] = true
	}

	for _, mime := range candidatePriority {
		if !advertised[mime] {
			continue
		}
		if factory, ok := registry[mime]; ok {
			return factory(), true
		}
	}
	return nil, false
}

// Stream pumps raw PCM through a negotiated Encoder and buffers the
// encoded output for the caller to hand off to the display protocol's
// chunked blob substream (spec §4.7's "chunked binary substream on the
// display protocol; frame boundaries are not preserved through that
// substream").
type Stream struct {
	mu      sync.Mutex
	encoder Encoder
	format  PCMFormat
	out     bytes.Buffer
	began   bool
	ended   bool
}

// NewStream wraps encoder for a stream with the given fixed PCM format.
func NewStream(encoder Encoder, format PCMFormat) *Stream {
	return &Stream{encoder: encoder, format: format}
}

// MIME returns the negotiated encoder's advertised MIME type.
func (s *Stream) MIME() string {
	return s.encoder.MIME()
}

// Push appends pcm to the stream, encoding it and buffering the result.
// Begin is emitted automatically before the first chunk.
func (s *Stream) Push(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return fmt.Errorf("audio: stream already ended")
	}
	if !s.began {
		if err := s.encoder.Begin(s.format, &s.out); err != nil {
			return fmt.Errorf("audio: begin: %w", err)
		}
		s.began = true
	}
	if err := s.encoder.Write(pcm, &s.out); err != nil {
		return fmt.Errorf("audio: write: %w", err)
	}
	return nil
}

// Drain returns and clears whatever encoded bytes have accumulated
// since the last Drain, for periodic hand-off to the blob substream.
func (s *Stream) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out.Len() == 0 {
		return nil
	}
	data := make([]byte, s.out.Len())
	copy(data, s.out.Bytes())
	s.out.Reset()
	return data
}

// End flushes trailing frames and marks the stream closed. The final
// Drain after End picks up whatever End wrote.
func (s *Stream) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	return s.encoder.End(&s.out)
}
