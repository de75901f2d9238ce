package transport

import "encoding/binary"

// Checksum16 is the standard 16-bit one's-complement Internet checksum over
// b (even-padded, network-order finalized), per spec.md §4.5/§6. Grounded on
// malbeclabs-doublezero/tools/uping/pkg/uping/listener.go's onesComplement16,
// the pack's only hand-rolled instance of this exact algorithm.
func Checksum16(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
