package protocol

import (
	"encoding/base64"
	"fmt"
	"io"
)

// defaultBlobChunk is the number of raw bytes base64-encoded into a
// single blob instruction before a substream's frame needs splitting.
const defaultBlobChunk = 6144

// Writer serializes primitives onto an underlying socket using the
// line-framed encoding (spec §4.11 / C11). It is not safe for concurrent
// use — callers (the frame pacer in steady state, the join handler during
// initial sync) must serialize writes per-connection, matching the
// gateway's single-update-lock-per-socket model (spec §5).
type Writer struct {
	out io.Writer
}

// NewWriter wraps out for instruction-stream writes.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) write(i Instruction) error {
	_, err := io.WriteString(w.out, i.Encode())
	return err
}

// Size emits the "size" instruction (layer id, width, height).
func (w *Writer) Size(layerID int, width, height int) error {
	return w.write(New(OpSize, itoa(layerID), itoa(width), itoa(height)))
}

// Move emits the "move" instruction (layer id, parent id, x, y, z).
func (w *Writer) Move(layerID, parentID, x, y, z int) error {
	return w.write(New(OpMove, itoa(layerID), itoa(parentID), itoa(x), itoa(y), itoa(z)))
}

// Shade emits the "shade" instruction (layer id, opacity 0-255).
func (w *Writer) Shade(layerID, opacity int) error {
	return w.write(New(OpShade, itoa(layerID), itoa(opacity)))
}

// Dispose emits the "dispose" instruction for a destroyed layer.
func (w *Writer) Dispose(layerID int) error {
	return w.write(New(OpDispose, itoa(layerID)))
}

// Rect emits the "rect" instruction describing a clip/paint rectangle.
func (w *Writer) Rect(layerID, x, y, width, height int) error {
	return w.write(New(OpRect, itoa(layerID), itoa(x), itoa(y), itoa(width), itoa(height)))
}

// CFill emits the "cfill" (constant-color fill) instruction.
func (w *Writer) CFill(channelMask int, layerID int, r, g, b, a uint8) error {
	return w.write(New(OpCFill, itoa(channelMask), itoa(layerID), itoa(int(r)), itoa(int(g)), itoa(int(b)), itoa(int(a))))
}

// LFill emits the "lfill" (layer-as-brush fill) instruction.
func (w *Writer) LFill(channelMask int, layerID, srcLayerID int) error {
	return w.write(New(OpLFill, itoa(channelMask), itoa(layerID), itoa(srcLayerID)))
}

// Copy emits the "copy" instruction: blit a rectangle from one surface
// to another.
func (w *Writer) Copy(srcLayerID, sx, sy, width, height int, channelMask, dstLayerID, dx, dy int) error {
	return w.write(New(OpCopy,
		itoa(srcLayerID), itoa(sx), itoa(sy), itoa(width), itoa(height),
		itoa(channelMask), itoa(dstLayerID), itoa(dx), itoa(dy)))
}

// PNG emits the "png" instruction: a still-image update for a layer's
// dirty rectangle, base64-encoded inline (small payloads only — larger
// images should go through Blob/End on a dedicated stream).
func (w *Writer) PNG(channelMask, layerID, x, y int, png []byte) error {
	encoded := base64.StdEncoding.EncodeToString(png)
	return w.write(New(OpPNG, itoa(channelMask), itoa(layerID), itoa(x), itoa(y), encoded))
}

// Cursor emits the "cursor" instruction: the current pointer image and
// hotspot, coalesced to at most once per frame by the caller.
func (w *Writer) Cursor(x, y, hotspotX, hotspotY int, png []byte) error {
	encoded := base64.StdEncoding.EncodeToString(png)
	return w.write(New(OpCursor, itoa(x), itoa(y), itoa(hotspotX), itoa(hotspotY), encoded))
}

// Sync emits the "sync" instruction stamped with the frame's timestamp
// (milliseconds since session start).
func (w *Writer) Sync(timestampMS int64) error {
	return w.write(New(OpSync, fmt.Sprintf("%d", timestampMS)))
}

// Error emits the "error" instruction (message, numeric code) and is
// always the last thing written before a fatal session teardown.
func (w *Writer) Error(message string, code int) error {
	return w.write(New(OpError, message, itoa(code)))
}

// Args emits the "args" instruction during handshake, advertising the
// connection parameter names the gateway accepts.
func (w *Writer) Args(names ...string) error {
	return w.write(New(OpArgs, names...))
}

// Name emits the "name" instruction (display/session name).
func (w *Writer) Name(name string) error {
	return w.write(New(OpName, name))
}

// Log emits the "log" instruction carrying a diagnostic message to the
// client (not used for bulk logging — see the logging package for that).
func (w *Writer) Log(message string) error {
	return w.write(New(OpLog, message))
}

// Clipboard emits the "clipboard" instruction: the host-side clipboard
// contents pushed down to the client, carrying a MIME type and the raw
// payload inline (clipboard payloads are small enough that a dedicated
// blob substream is unnecessary).
func (w *Writer) Clipboard(mimeType string, data []byte) error {
	return w.write(New(OpClipboard, mimeType, string(data)))
}

// BlobStream writes raw bytes to a named substream as one or more
// base64-encoded "blob" instructions, followed by an "end" instruction.
// Frame boundaries within data are not preserved, matching §4.7/§4.11.
func (w *Writer) BlobStream(streamID string, data []byte) error {
	for len(data) > 0 {
		n := defaultBlobChunk
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]
		encoded := base64.StdEncoding.EncodeToString(chunk)
		if err := w.write(New(OpBlob, streamID, encoded)); err != nil {
			return err
		}
	}
	return w.write(New(OpEnd, streamID))
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
