package socket

import "bytes"

// BoundaryCheckRequest is the default check_request installed once a
// boundary has been configured (spec.md §4.3): it scans the receive buffer
// for the boundary, and for each complete frame (prefix + boundary) calls
// HandleRequest and compacts. A single-byte boundary uses a faster scan
// (spec.md: "A specialized single-byte boundary variant is chosen
// automatically when the boundary is a single byte").
func BoundaryCheckRequest(s *Socket) error {
	if len(s.Boundary) == 1 {
		return singleByteBoundary(s, s.Boundary[0])
	}
	return multiByteBoundary(s, s.Boundary)
}

func singleByteBoundary(s *Socket, b byte) error {
	for {
		buf := s.In.Bytes()
		idx := bytes.IndexByte(buf, b)
		if idx < 0 {
			return nil
		}
		frameLen := idx + 1
		frame := append([]byte(nil), buf[:frameLen]...)
		if s.CB.HandleRequest != nil {
			if err := s.CB.HandleRequest(s, frame); err != nil {
				return err
			}
		}
		if err := s.In.Reduce(frameLen); err != nil {
			return err
		}
	}
}

func multiByteBoundary(s *Socket, boundary []byte) error {
	for {
		buf := s.In.Bytes()
		idx := bytes.Index(buf, boundary)
		if idx < 0 {
			return nil
		}
		frameLen := idx + len(boundary)
		frame := append([]byte(nil), buf[:frameLen]...)
		if s.CB.HandleRequest != nil {
			if err := s.CB.HandleRequest(s, frame); err != nil {
				return err
			}
		}
		if err := s.In.Reduce(frameLen); err != nil {
			return err
		}
	}
}
