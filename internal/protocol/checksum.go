package protocol

// Checksum folds XOR over b with a zero starting accumulator.
// It detects any single-bit corruption; multi-bit errors may cancel out.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}
