package session

import (
	"time"

	"github.com/deskrelay/gateway/internal/display"
)

// channelMaskSrc is the channel mask passed for every update primitive
// that replaces a destination rectangle outright rather than blending
// into it — the same constant already used for PNG/Copy, named here so
// CFill shares it instead of repeating the literal.
const channelMaskSrc = 0xFFFFFFFF

// FlushFrame drains the display and writes the resulting primitives,
// wrapped with a timestamped sync instruction. This is the closure
// handed to pacer.New as its flush callback — the pacer owns the
// cadence, this owns the wire translation (spec §4.9/§4.11).
func (s *Session) FlushFrame() {
	deltas, disposals, cursor := s.disp.Flush()
	s.ApplyDelta(deltas, disposals, cursor)
}

// ApplyDelta writes a precomputed display delta to this session's
// socket. It is split out from FlushFrame so a display shared by
// several viewers (the driver core's multi-viewer case) can call
// Display.Flush once and fan the same delta out to every attached
// session, instead of each session racing to drain the same dirty
// state via its own FlushFrame.
func (s *Session) ApplyDelta(deltas []display.LayerDelta, disposals []display.Disposal, cursor *display.CursorState) {
	if len(deltas) == 0 && len(disposals) == 0 && cursor == nil {
		return
	}

	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	for _, d := range deltas {
		s.introduceLayerLocked(d.LayerID)
		if fill := d.Delta.Fill; fill != nil {
			if err := s.writer.Rect(d.LayerID, fill.Rect.X, fill.Rect.Y, fill.Rect.W, fill.Rect.H); err != nil {
				s.log.Debug("session: write failed", "error", err)
				return
			}
			if err := s.writer.CFill(channelMaskSrc, d.LayerID, fill.Color[0], fill.Color[1], fill.Color[2], fill.Color[3]); err != nil {
				s.log.Debug("session: write failed", "error", err)
				return
			}
			continue
		}
		if d.Delta.Image != nil {
			encoded, err := encodePNG(d.Delta.Image.Pixels, d.Delta.Image.Rect.W, d.Delta.Image.Rect.H)
			if err != nil {
				s.log.Warn("session: png encode failed", "layer", d.LayerID, "error", err)
				continue
			}
			if err := s.writer.PNG(channelMaskSrc, d.LayerID, d.Delta.Image.Rect.X, d.Delta.Image.Rect.Y, encoded); err != nil {
				s.log.Debug("session: write failed", "error", err)
				return
			}
			continue
		}
		if len(d.Delta.Tiles) > 0 {
			for _, tile := range d.Delta.Tiles {
				encoded, err := encodePNG(tile.Pixels, tile.Rect.W, tile.Rect.H)
				if err != nil {
					s.log.Warn("session: png encode failed", "layer", d.LayerID, "error", err)
					continue
				}
				if err := s.writer.PNG(channelMaskSrc, d.LayerID, tile.Rect.X, tile.Rect.Y, encoded); err != nil {
					s.log.Debug("session: write failed", "error", err)
					return
				}
			}
			continue
		}
		for _, c := range d.Delta.Copies {
			if err := s.writer.Copy(c.SrcSurfaceID, c.Src.X, c.Src.Y, c.Src.W, c.Src.H, channelMaskSrc, d.LayerID, c.DstX, c.DstY); err != nil {
				s.log.Debug("session: write failed", "error", err)
				return
			}
		}
	}

	for _, disposal := range disposals {
		delete(s.introduced, disposal.ID)
		if err := s.writer.Dispose(disposal.ID); err != nil {
			s.log.Debug("session: write failed", "error", err)
			return
		}
	}

	if cursor != nil {
		encoded, err := encodePNG(cursor.Image, cursor.Width, cursor.Height)
		if err == nil {
			s.writer.Cursor(cursor.X, cursor.Y, cursor.HotspotX, cursor.HotspotY, encoded)
		}
	}

	s.writer.Sync(time.Now().UnixMilli())
}

// introduceLayerLocked emits size+move+shade for a layer the first
// time this session's flush loop sees a delta reference it — covering
// layers created after this session's initial sync. Must be called
// with updateLock held.
func (s *Session) introduceLayerLocked(id int) {
	if s.introduced == nil {
		s.introduced = make(map[int]bool)
	}
	if s.introduced[id] || id == display.RootID {
		if id == display.RootID {
			s.introduced[id] = true
		}
		return
	}
	surf, err := s.disp.Surface(id)
	if err != nil {
		return
	}
	s.writer.Size(id, surf.Width(), surf.Height())
	s.writer.Move(id, surf.ParentID, surf.X, surf.Y, surf.Z)
	s.writer.Shade(id, int(surf.Opacity))
	s.introduced[id] = true
}
