package transport

import "encoding/binary"

// header32 reads the record-length prefix of a queued send record (see
// udpRecordHeaderLen).
func header32(header []byte) uint32 {
	return binary.BigEndian.Uint32(header[0:4])
}

// addrFromRecord extracts the peer address field of a queued send record.
func addrFromRecord(header []byte) [4]byte {
	var addr [4]byte
	binary.BigEndian.PutUint32(addr[:], binary.BigEndian.Uint32(header[4:8]))
	return addr
}
