package audio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

func init() {
	Register(MIMEOggVorbis, func() Encoder { return &oggVorbisEncoder{} })
}

// oggVorbisEncoder implements the Ogg Vorbis candidate at the
// container/streaming-contract level only — actual Vorbis bitstream
// encoding is explicitly out of scope (spec §1: "Audio codec internals
// (Ogg Vorbis / WAV) — only the streaming contract matters"). It emits
// correctly-framed Ogg pages (CRC, sequence numbers, granule position)
// wrapping PCM payload so the client-side transport sees a well-formed
// stream. The page payload comes from encodePayload, which currently
// passes the raw PCM through unchanged; no Vorbis compression is done.
type oggVorbisEncoder struct {
	serial  uint32
	pageSeq uint32
	granule uint64
	format  PCMFormat
}

func (e *oggVorbisEncoder) MIME() string { return MIMEOggVorbis }

func (e *oggVorbisEncoder) Begin(format PCMFormat, out *bytes.Buffer) error {
	e.format = format
	e.serial = 1
	e.writePage(out, true, false, e.identificationHeader())
	e.pageSeq++
	e.writePage(out, false, false, e.commentHeader())
	e.pageSeq++
	return nil
}

func (e *oggVorbisEncoder) Write(pcm []byte, out *bytes.Buffer) error {
	payload := encodePayload(pcm)
	samples := uint64(len(pcm) / (e.format.Channels * e.format.BytesPerSample))
	e.granule += samples
	e.writePage(out, false, false, payload)
	e.pageSeq++
	return nil
}

func (e *oggVorbisEncoder) End(out *bytes.Buffer) error {
	e.writePage(out, false, true, nil)
	e.pageSeq++
	return nil
}

// encodePayload is the seam where a real Vorbis encoder would replace
// raw PCM with compressed frames. No such library exists anywhere in
// the example pack, so payload framing is exercised here without
// claiming the bytes are valid Vorbis audio.
func encodePayload(pcm []byte) []byte {
	return pcm
}

func (e *oggVorbisEncoder) identificationHeader() []byte {
	var b bytes.Buffer
	b.WriteByte(1) // packet type: identification
	b.WriteString("vorbis")
	binary.Write(&b, binary.LittleEndian, uint32(0)) // vorbis_version
	b.WriteByte(byte(e.format.Channels))
	binary.Write(&b, binary.LittleEndian, uint32(e.format.SampleRateHz))
	binary.Write(&b, binary.LittleEndian, int32(0)) // bitrate_maximum
	binary.Write(&b, binary.LittleEndian, int32(0)) // bitrate_nominal
	binary.Write(&b, binary.LittleEndian, int32(0)) // bitrate_minimum
	return b.Bytes()
}

func (e *oggVorbisEncoder) commentHeader() []byte {
	var b bytes.Buffer
	b.WriteByte(3) // packet type: comment
	b.WriteString("vorbis")
	vendor := "deskrelay"
	binary.Write(&b, binary.LittleEndian, uint32(len(vendor)))
	b.WriteString(vendor)
	binary.Write(&b, binary.LittleEndian, uint32(0)) // comment count
	return b.Bytes()
}

// writePage frames payload as one Ogg page: capture pattern, version,
// header type flags, granule position, stream serial, page sequence,
// a CRC32 checksum computed over the page with the checksum field
// zeroed, and a lacing table from segmentTable sized to payload.
func (e *oggVorbisEncoder) writePage(out *bytes.Buffer, first, last bool, payload []byte) {
	var page bytes.Buffer
	page.WriteString("OggS")
	page.WriteByte(0) // stream structure version

	var headerType byte
	if first {
		headerType |= 0x02
	}
	if last {
		headerType |= 0x04
	}
	page.WriteByte(headerType)

	binary.Write(&page, binary.LittleEndian, e.granule)
	binary.Write(&page, binary.LittleEndian, e.serial)
	binary.Write(&page, binary.LittleEndian, e.pageSeq)
	binary.Write(&page, binary.LittleEndian, uint32(0)) // CRC placeholder

	segments := segmentTable(len(payload))
	page.WriteByte(byte(len(segments)))
	for _, s := range segments {
		page.WriteByte(s)
	}
	page.Write(payload)

	framed := page.Bytes()
	crc := crc32.ChecksumIEEE(framed)
	binary.LittleEndian.PutUint32(framed[22:26], crc)

	out.Write(framed)
}

// segmentTable builds the lacing values for a page payload of length n
// (each segment at most 255 bytes, a final segment < 255 terminates
// the packet).
func segmentTable(n int) []byte {
	if n == 0 {
		return []byte{0}
	}
	var segs []byte
	for n >= 255 {
		segs = append(segs, 255)
		n -= 255
	}
	segs = append(segs, byte(n))
	return segs
}
