package socket

import "fmt"

// printfScratchSize bounds the formatted-write scratch buffer (spec.md §4.1
// "Printf ... bounded formatted write into a 2 KiB scratch").
const printfScratchSize = 2 * 1024

// Write appends bytes to the output buffer. If the buffer would overflow,
// Kicked(overflow) fires if set and Write reports false; the caller must
// not assume the bytes were queued. Immediate-flush-on-writable-opportunity
// is an optimization spec.md marks non-observable, so it is intentionally
// not implemented here — the reactor's next Write dispatch drains the
// buffer instead.
func (s *Socket) Write(p []byte) bool {
	if s.Out.Append(p) {
		return true
	}
	if s.CB.Kicked != nil {
		s.CB.Kicked(s, KickOverflow)
	}
	return false
}

// Printf formats into a bounded scratch buffer and writes the result,
// truncating to the scratch size if the formatted text is longer (spec.md
// §4.1).
func (s *Socket) Printf(format string, args ...any) bool {
	text := fmt.Sprintf(format, args...)
	if len(text) > printfScratchSize {
		text = text[:printfScratchSize]
	}
	return s.Write([]byte(text))
}

// ResizeBuffers reallocates the send and/or receive buffer. A zero size
// leaves that buffer untouched.
func (s *Socket) ResizeBuffers(sendSize, recvSize int) {
	if sendSize > 0 {
		s.Out.Resize(sendSize)
	}
	if recvSize > 0 {
		s.In.Resize(recvSize)
	}
}

// ReduceRecv compacts the head of the receive buffer by n bytes. This is the
// only supported consumption primitive for HandleRequest (spec.md §4.1).
func (s *Socket) ReduceRecv(n int) error {
	return s.In.Reduce(n)
}
