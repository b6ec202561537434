// Package protocol owns the 13-byte config descriptor wire contract.
//
// Ownership boundary:
// - ConfigState value type and its byte/hex codecs
// - XOR checksum primitive
// - HTTP header mapping for the descriptor fields
package protocol
