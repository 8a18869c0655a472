package drivercore

import "github.com/deskrelay/gateway/internal/surface"

// The following wrap Hooks' pure display mutations with the broadcast
// every attached viewer needs afterward — Hooks itself stays a plain
// mutator so it can be unit-tested against a Display without a live
// Server/viewer set.

func (srv *Server) CreateDrawable(parentID, x, y, z, w, h int, opacity uint8) int {
	id := srv.Hooks.CreateDrawable(parentID, x, y, z, w, h, opacity)
	srv.pacer.MarkModified()
	return id
}

func (srv *Server) DestroyDrawable(id int) error {
	if err := srv.Hooks.DestroyDrawable(id); err != nil {
		return err
	}
	srv.pacer.MarkModified()
	return nil
}

func (srv *Server) MoveDrawable(id, parentID, x, y, z int) error {
	if err := srv.Hooks.MoveDrawable(id, parentID, x, y, z); err != nil {
		return err
	}
	srv.pacer.MarkModified()
	return nil
}

func (srv *Server) ResizeDrawable(id, w, h int) error {
	if err := srv.Hooks.ResizeDrawable(id, w, h); err != nil {
		return err
	}
	srv.pacer.MarkModified()
	return nil
}

func (srv *Server) ShadeDrawable(id int, opacity uint8) error {
	if err := srv.Hooks.ShadeDrawable(id, opacity); err != nil {
		return err
	}
	srv.pacer.MarkModified()
	return nil
}

// CopyArea mutates the display via Hooks. A plain copy just marks the
// display modified for the next paced frame, same as any other
// mutation; a composited copy (supplemented feature #5) forces an
// immediate drain-and-broadcast instead of waiting for the pacer, since
// it has already materialized into pixel memory and there is nothing
// left to gain by coalescing it with subsequent updates.
func (srv *Server) CopyArea(srcID int, sx, sy, w, h int, dstID int, dx, dy int, composited bool) error {
	if err := srv.Hooks.CopyArea(srcID, sx, sy, w, h, dstID, dx, dy, composited); err != nil {
		return err
	}
	if composited {
		srv.broadcastFlush()
	} else {
		srv.pacer.MarkModified()
	}
	return nil
}

func (srv *Server) FillRect(id int, x, y, w, h int, rgba [4]byte) error {
	if err := srv.Hooks.FillRect(id, x, y, w, h, rgba); err != nil {
		return err
	}
	srv.pacer.MarkModified()
	return nil
}

func (srv *Server) PutImage(id int, x, y int, pixels []byte, stride int, format surface.Format) error {
	if err := srv.Hooks.PutImage(id, x, y, pixels, stride, format); err != nil {
		return err
	}
	srv.pacer.MarkModified()
	return nil
}
