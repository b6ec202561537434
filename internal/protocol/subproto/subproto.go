// Package subproto implements the fixed-width binary control frames
// carried over the config WebSocket subprotocol.
//
// Single-field frames are exactly 14 bytes:
//
//	0:type(1) 1:fieldOffset-or-code(4,u32 LE) 5:value(8,u64 LE) 13:checksum(1)
//
// Bulk frames are 1 + 13*N + 1 bytes: one outer type byte, N 13-byte
// sub-records (a single-field frame minus its checksum), one trailing
// checksum over everything preceding it.
package subproto

import (
	"encoding/binary"
	"errors"

	"github.com/danmuck/edgeproxy/internal/protocol"
)

const (
	FrameLen     = 14
	subRecordLen = 13

	offsetType     = 0
	offsetCode     = 1
	offsetValue    = 5
	offsetChecksum = 13
)

// MessageType is the leading tag byte of every frame.
type MessageType byte

const (
	MsgConfigUpdate   MessageType = 0x01
	MsgTerminalResize MessageType = 0x02
	MsgFeatureToggle  MessageType = 0x03
	MsgBulkUpdate     MessageType = 0x04
	MsgHeartbeat      MessageType = 0x05
	MsgAck            MessageType = 0x06
	MsgError          MessageType = 0x07
)

func (t MessageType) String() string {
	switch t {
	case MsgConfigUpdate:
		return "config_update"
	case MsgTerminalResize:
		return "terminal_resize"
	case MsgFeatureToggle:
		return "feature_toggle"
	case MsgBulkUpdate:
		return "bulk_update"
	case MsgHeartbeat:
		return "heartbeat"
	case MsgAck:
		return "ack"
	case MsgError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidFrameLength = errors.New("subproto: invalid frame length")
	ErrChecksumMismatch   = errors.New("subproto: frame checksum mismatch")
	ErrUnknownField       = errors.New("subproto: unknown config field")
	ErrUnknownMessageType = errors.New("subproto: unknown message type")
	ErrEmptyFrame         = errors.New("subproto: empty frame")
	ErrTypeMismatch       = errors.New("subproto: frame type mismatch")
	ErrEmptyBulkUpdate    = errors.New("subproto: bulk update carries no records")
)

// Update is one decoded {field, value} pair.
type Update struct {
	Field string
	Value uint64
}

// GetMessageType reads the tag byte without allocating.
func GetMessageType(frame []byte) (MessageType, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}
	return MessageType(frame[offsetType]), nil
}

// ValidateFrame recomputes the checksum over all bytes preceding the
// trailing byte and compares. It accepts both fixed and bulk lengths.
func ValidateFrame(frame []byte) error {
	if len(frame) < 2 {
		return ErrInvalidFrameLength
	}
	last := len(frame) - 1
	if protocol.Checksum(frame[:last]) != frame[last] {
		return ErrChecksumMismatch
	}
	return nil
}

func sealFixed(t MessageType, code uint32, value uint64) []byte {
	buf := make([]byte, FrameLen)
	buf[offsetType] = byte(t)
	binary.LittleEndian.PutUint32(buf[offsetCode:offsetCode+4], code)
	binary.LittleEndian.PutUint64(buf[offsetValue:offsetValue+8], value)
	buf[offsetChecksum] = protocol.Checksum(buf[:offsetChecksum])
	return buf
}

func openFixed(frame []byte, want MessageType) (code uint32, value uint64, err error) {
	if len(frame) != FrameLen {
		return 0, 0, ErrInvalidFrameLength
	}
	if err := ValidateFrame(frame); err != nil {
		return 0, 0, err
	}
	if MessageType(frame[offsetType]) != want {
		return 0, 0, ErrTypeMismatch
	}
	code = binary.LittleEndian.Uint32(frame[offsetCode : offsetCode+4])
	value = binary.LittleEndian.Uint64(frame[offsetValue : offsetValue+8])
	return code, value, nil
}

// EncodeConfigUpdate builds a CONFIG_UPDATE frame targeting the named field.
func EncodeConfigUpdate(field string, value uint64) ([]byte, error) {
	spec, ok := protocol.FieldByName(field)
	if !ok {
		return nil, ErrUnknownField
	}
	return sealFixed(MsgConfigUpdate, spec.Offset, value), nil
}

// DecodeConfigUpdate unpacks a CONFIG_UPDATE frame into {field, value}.
func DecodeConfigUpdate(frame []byte) (Update, error) {
	offset, value, err := openFixed(frame, MsgConfigUpdate)
	if err != nil {
		return Update{}, err
	}
	spec, ok := protocol.FieldByOffset(offset)
	if !ok {
		return Update{}, ErrUnknownField
	}
	return Update{Field: spec.Name, Value: value}, nil
}

// EncodeTerminalResize packs rows into the upper byte and cols into the
// lower byte of the value slot's low 16 bits.
func EncodeTerminalResize(rows, cols uint8) []byte {
	packed := uint64(rows)<<8 | uint64(cols)
	return sealFixed(MsgTerminalResize, protocol.OffsetRows, packed)
}

// DecodeTerminalResize reverses EncodeTerminalResize.
func DecodeTerminalResize(frame []byte) (rows, cols uint8, err error) {
	_, value, err := openFixed(frame, MsgTerminalResize)
	if err != nil {
		return 0, 0, err
	}
	return uint8(value >> 8), uint8(value), nil
}

// EncodeFeatureToggle targets the featureFlags field offset and packs the
// flag index above the enabled bit.
func EncodeFeatureToggle(flagIndex uint32, enabled bool) []byte {
	packed := uint64(flagIndex) << 1
	if enabled {
		packed |= 1
	}
	return sealFixed(MsgFeatureToggle, protocol.OffsetFeatureFlags, packed)
}

// DecodeFeatureToggle reverses EncodeFeatureToggle.
func DecodeFeatureToggle(frame []byte) (flagIndex uint32, enabled bool, err error) {
	_, value, err := openFixed(frame, MsgFeatureToggle)
	if err != nil {
		return 0, false, err
	}
	return uint32(value >> 1), value&1 == 1, nil
}

// EncodeBulkUpdate concatenates one 13-byte sub-record per update under a
// single outer type byte and a single trailing checksum.
func EncodeBulkUpdate(updates []Update) ([]byte, error) {
	if len(updates) == 0 {
		return nil, ErrEmptyBulkUpdate
	}
	buf := make([]byte, 0, 1+subRecordLen*len(updates)+1)
	buf = append(buf, byte(MsgBulkUpdate))
	for _, u := range updates {
		spec, ok := protocol.FieldByName(u.Field)
		if !ok {
			return nil, ErrUnknownField
		}
		var rec [subRecordLen]byte
		rec[0] = byte(MsgConfigUpdate)
		binary.LittleEndian.PutUint32(rec[1:5], spec.Offset)
		binary.LittleEndian.PutUint64(rec[5:13], u.Value)
		buf = append(buf, rec[:]...)
	}
	buf = append(buf, protocol.Checksum(buf))
	return buf, nil
}

// DecodeBulkUpdate validates the frame as a whole and unpacks the record list.
func DecodeBulkUpdate(frame []byte) ([]Update, error) {
	if len(frame) < 1+subRecordLen+1 || (len(frame)-2)%subRecordLen != 0 {
		return nil, ErrInvalidFrameLength
	}
	if err := ValidateFrame(frame); err != nil {
		return nil, err
	}
	if MessageType(frame[offsetType]) != MsgBulkUpdate {
		return nil, ErrTypeMismatch
	}

	body := frame[1 : len(frame)-1]
	updates := make([]Update, 0, len(body)/subRecordLen)
	for i := 0; i < len(body); i += subRecordLen {
		rec := body[i : i+subRecordLen]
		if MessageType(rec[0]) != MsgConfigUpdate {
			return nil, ErrTypeMismatch
		}
		offset := binary.LittleEndian.Uint32(rec[1:5])
		spec, ok := protocol.FieldByOffset(offset)
		if !ok {
			return nil, ErrUnknownField
		}
		updates = append(updates, Update{
			Field: spec.Name,
			Value: binary.LittleEndian.Uint64(rec[5:13]),
		})
	}
	return updates, nil
}

// EncodeHeartbeat carries a millisecond timestamp in the value slot.
func EncodeHeartbeat(timestampMS uint64) []byte {
	return sealFixed(MsgHeartbeat, 0, timestampMS)
}

// DecodeHeartbeat returns the carried timestamp.
func DecodeHeartbeat(frame []byte) (uint64, error) {
	_, value, err := openFixed(frame, MsgHeartbeat)
	return value, err
}

// EncodeAck acknowledges a previously received message type.
func EncodeAck(original MessageType) []byte {
	return sealFixed(MsgAck, uint32(original), 0)
}

// DecodeAck returns the acknowledged message type.
func DecodeAck(frame []byte) (MessageType, error) {
	code, _, err := openFixed(frame, MsgAck)
	if err != nil {
		return 0, err
	}
	return MessageType(code), nil
}

// EncodeError carries a numeric error code in the 4-byte slot. Human
// readable text does not fit the fixed frame and travels on the
// transport's sideband channel.
func EncodeError(code uint32) []byte {
	return sealFixed(MsgError, code, 0)
}

// DecodeError returns the carried error code.
func DecodeError(frame []byte) (uint32, error) {
	code, _, err := openFixed(frame, MsgError)
	return code, err
}
