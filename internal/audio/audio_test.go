package audio

import (
	"bytes"
	"testing"
)

func TestNegotiatePrefersOggOverWav(t *testing.T) {
	enc, ok := Negotiate([]string{MIMEWavPCM, MIMEOggVorbis})
	if !ok {
		t.Fatal("expected a match")
	}
	if enc.MIME() != MIMEOggVorbis {
		t.Fatalf("MIME() = %q, want %q", enc.MIME(), MIMEOggVorbis)
	}
}

func TestNegotiateFallsBackToWavWhenOggNotAdvertised(t *testing.T) {
	enc, ok := Negotiate([]string{MIMEWavPCM})
	if !ok {
		t.Fatal("expected a match")
	}
	if enc.MIME() != MIMEWavPCM {
		t.Fatalf("MIME() = %q, want %q", enc.MIME(), MIMEWavPCM)
	}
}

func TestNegotiateNoMatchDisablesSilently(t *testing.T) {
	_, ok := Negotiate([]string{"audio/flac"})
	if ok {
		t.Fatal("expected no match for an unsupported MIME list")
	}
}

func TestStreamPushBeginsOnFirstChunkOnly(t *testing.T) {
	format := PCMFormat{Channels: 2, SampleRateHz: 44100, BytesPerSample: 2}
	enc, _ := Negotiate([]string{MIMEWavPCM})
	s := NewStream(enc, format)

	if err := s.Push(make([]byte, 8)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	first := s.Drain()
	if len(first) <= 8 {
		t.Fatalf("expected first drain to include a header, got %d bytes", len(first))
	}

	if err := s.Push(make([]byte, 8)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	second := s.Drain()
	if len(second) != 8 {
		t.Fatalf("expected second drain to be pure PCM passthrough, got %d bytes", len(second))
	}
}

func TestStreamPushAfterEndFails(t *testing.T) {
	format := PCMFormat{Channels: 1, SampleRateHz: 8000, BytesPerSample: 2}
	enc, _ := Negotiate([]string{MIMEWavPCM})
	s := NewStream(enc, format)

	if err := s.Push(make([]byte, 4)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := s.Push(make([]byte, 4)); err == nil {
		t.Fatal("expected Push after End to fail")
	}
}

func TestStreamDrainResetsBuffer(t *testing.T) {
	format := PCMFormat{Channels: 1, SampleRateHz: 8000, BytesPerSample: 2}
	enc, _ := Negotiate([]string{MIMEWavPCM})
	s := NewStream(enc, format)

	s.Push(make([]byte, 4))
	s.Drain()
	if out := s.Drain(); out != nil {
		t.Fatalf("expected nil on an empty drain, got %d bytes", len(out))
	}
}

func TestWAVHeaderFields(t *testing.T) {
	var buf bytes.Buffer
	format := PCMFormat{Channels: 2, SampleRateHz: 44100, BytesPerSample: 2}
	writeWAVHeader(&buf, format, 1000)

	data := buf.Bytes()
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q", data[:12])
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		t.Fatalf("missing fmt/data chunk IDs: %q %q", data[12:16], data[36:40])
	}
	channels := uint16(data[22]) | uint16(data[23])<<8
	if channels != 2 {
		t.Fatalf("channels = %d, want 2", channels)
	}
}

func TestOggVorbisPagesStartWithCapturePattern(t *testing.T) {
	var buf bytes.Buffer
	enc := &oggVorbisEncoder{}
	format := PCMFormat{Channels: 1, SampleRateHz: 48000, BytesPerSample: 2}

	if err := enc.Begin(format, &buf); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := buf.Bytes()[0:4]; string(got) != "OggS" {
		t.Fatalf("first page capture pattern = %q, want OggS", got)
	}
}

func TestOggVorbisEndEmitsFinalPage(t *testing.T) {
	var buf bytes.Buffer
	enc := &oggVorbisEncoder{}
	format := PCMFormat{Channels: 1, SampleRateHz: 48000, BytesPerSample: 2}
	enc.Begin(format, &buf)
	buf.Reset()

	if err := enc.End(&buf); err != nil {
		t.Fatalf("End: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected End to emit a trailing page")
	}
}

func TestSegmentTableSplitsOn255ByteBoundaries(t *testing.T) {
	segs := segmentTable(510)
	want := []byte{255, 255, 0}
	if !bytes.Equal(segs, want) {
		t.Fatalf("segmentTable(510) = %v, want %v", segs, want)
	}
}
