package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Wire layout of the config descriptor. Multi-byte fields are little-endian.
//
//	0:version(1) 1:registryHash(4) 5:featureFlags(4)
//	9:terminalMode(1) 10:rows(1) 11:cols(1) 12:checksum(1)
const (
	DumpLen    = 13
	HexDumpLen = 2 + DumpLen*2 // "0x" + 26 hex chars

	OffsetVersion      = 0
	OffsetRegistryHash = 1
	OffsetFeatureFlags = 5
	OffsetTerminalMode = 9
	OffsetRows         = 10
	OffsetCols         = 11
	OffsetChecksum     = 12
)

// Feature flag bits 0-10 are assigned; bits 11-31 are reserved and must be zero.
const ReservedFlagsMask uint32 = 0xFFFFF800

// Terminal modes.
const (
	TerminalDisabled uint8 = 0
	TerminalReadOnly uint8 = 1
	TerminalShell    uint8 = 2
	TerminalPipe     uint8 = 3

	TerminalModeMax uint8 = TerminalPipe
)

// ConfigState is the canonical in-memory form of the descriptor.
// Values are immutable: constructed per request or frame, never mutated.
// Two states with equal fields are interchangeable.
type ConfigState struct {
	Version      uint8
	RegistryHash uint32
	FeatureFlags uint32
	TerminalMode uint8
	Rows         uint8
	Cols         uint8
}

// Serialize packs c into the 13-byte wire form, recomputing the checksum.
func (c ConfigState) Serialize() []byte {
	buf := make([]byte, DumpLen)
	buf[OffsetVersion] = c.Version
	binary.LittleEndian.PutUint32(buf[OffsetRegistryHash:OffsetRegistryHash+4], c.RegistryHash)
	binary.LittleEndian.PutUint32(buf[OffsetFeatureFlags:OffsetFeatureFlags+4], c.FeatureFlags)
	buf[OffsetTerminalMode] = c.TerminalMode
	buf[OffsetRows] = c.Rows
	buf[OffsetCols] = c.Cols
	buf[OffsetChecksum] = Checksum(buf[:OffsetChecksum])
	return buf
}

// Deserialize unpacks a 13-byte dump, verifying length and checksum.
// A checksum mismatch is a hard failure and is never corrected.
func Deserialize(b []byte) (ConfigState, error) {
	if len(b) != DumpLen {
		return ConfigState{}, ErrInvalidLength
	}
	if Checksum(b[:OffsetChecksum]) != b[OffsetChecksum] {
		return ConfigState{}, ErrChecksumMismatch
	}
	return ConfigState{
		Version:      b[OffsetVersion],
		RegistryHash: binary.LittleEndian.Uint32(b[OffsetRegistryHash : OffsetRegistryHash+4]),
		FeatureFlags: binary.LittleEndian.Uint32(b[OffsetFeatureFlags : OffsetFeatureFlags+4]),
		TerminalMode: b[OffsetTerminalMode],
		Rows:         b[OffsetRows],
		Cols:         b[OffsetCols],
	}, nil
}

// Hex returns the dump as "0x" followed by 26 lowercase hex characters.
func (c ConfigState) Hex() string {
	return "0x" + hex.EncodeToString(c.Serialize())
}

// FromHex decodes the "0x"+26-hex form back into a ConfigState.
func FromHex(s string) (ConfigState, error) {
	if len(s) != HexDumpLen || !strings.HasPrefix(s, "0x") {
		return ConfigState{}, ErrInvalidHexLength
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return ConfigState{}, ErrInvalidHexLength
	}
	return Deserialize(raw)
}
