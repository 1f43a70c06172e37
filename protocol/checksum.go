package protocol

// Checksum computes the 16-bit additive checksum used by the dimmer protocol.
// It covers the sequence, command, length and payload bytes of a frame, that
// is everything between the start marker and the checksum itself.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
