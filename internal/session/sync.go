package session

import (
	"bytes"
	"image"
	"image/png"

	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/gwerr"
)

// SyncDisplay replays the current display state to a newly joined
// client: for each existing surface, in parents-before-children order,
// emit size+move+shade+image primitives, then the current cursor
// (spec §4.10's synchronization phase). It holds updateLock for the
// duration, same as the pacer does for a normal flush, so a sync never
// interleaves with a steady-state frame.
func (s *Session) SyncDisplay() error {
	s.setState(StateSyncing)
	defer func() {
		if s.State() == StateSyncing {
			s.setState(StateSteady)
		}
	}()

	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	if s.introduced == nil {
		s.introduced = make(map[int]bool)
	}
	for _, layer := range s.disp.SyncSnapshot() {
		if err := s.replayLayer(layer); err != nil {
			return err
		}
		s.introduced[layer.ID] = true
	}

	cursor := s.disp.CurrentCursor()
	if cursor.Width > 0 && cursor.Height > 0 {
		encoded, err := encodePNG(cursor.Image, cursor.Width, cursor.Height)
		if err != nil {
			return gwerr.New(gwerr.ClassResourceExhausted, "session", err)
		}
		if err := s.writer.Cursor(cursor.X, cursor.Y, cursor.HotspotX, cursor.HotspotY, encoded); err != nil {
			return gwerr.New(gwerr.ClassTransient, "session", err)
		}
	}
	return nil
}

func (s *Session) replayLayer(layer display.LayerSnapshot) error {
	if err := s.writer.Size(layer.ID, layer.Width, layer.Height); err != nil {
		return gwerr.New(gwerr.ClassTransient, "session", err)
	}
	if err := s.writer.Move(layer.ID, layer.ParentID, layer.X, layer.Y, layer.Z); err != nil {
		return gwerr.New(gwerr.ClassTransient, "session", err)
	}
	if err := s.writer.Shade(layer.ID, int(layer.Opacity)); err != nil {
		return gwerr.New(gwerr.ClassTransient, "session", err)
	}
	if layer.Width == 0 || layer.Height == 0 {
		return nil
	}
	encoded, err := encodePNG(layer.Pixels, layer.Width, layer.Height)
	if err != nil {
		return gwerr.New(gwerr.ClassResourceExhausted, "session", err)
	}
	if err := s.writer.PNG(channelMaskSrc, layer.ID, 0, 0, encoded); err != nil {
		return gwerr.New(gwerr.ClassTransient, "session", err)
	}
	return nil
}

// encodePNG wraps row-major RGBA32 pixels as a PNG, the wire format
// for the "png" and "cursor" instructions' image payloads (spec §6).
// No third-party image codec appears anywhere in the example pack, so
// this is the one place this module reaches for the standard
// library's own encoder rather than an ecosystem package.
func encodePNG(pixels []byte, w, h int) ([]byte, error) {
	img := &image.RGBA{Pix: pixels, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
