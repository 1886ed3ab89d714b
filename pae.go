package pasetox

import "encoding/binary"

// pae implements PASETO pre-authentication encoding: the little-endian
// uint64 piece count, then each piece as its little-endian uint64 length
// followed by the raw bytes. No two piece lists share an encoding.
func pae(pieces ...[]byte) []byte {
	size := 8
	for _, p := range pieces {
		size += 8 + len(p)
	}
	out := make([]byte, 0, size)
	out = le64(out, uint64(len(pieces)))
	for _, p := range pieces {
		out = le64(out, uint64(len(p)))
		out = append(out, p...)
	}
	return out
}

// le64 appends n with the most significant bit cleared, as PASETO requires.
func le64(dst []byte, n uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, n&^(1<<63))
}
