package subproto

import (
	"errors"
	"testing"

	"github.com/danmuck/edgeproxy/internal/protocol"
)

func TestConfigUpdateRoundTripPerField(t *testing.T) {
	cases := map[string]uint64{
		protocol.FieldVersion:      1,
		protocol.FieldRegistryHash: 0xa1b2c3d4,
		protocol.FieldFeatureFlags: 0x7,
		protocol.FieldTerminalMode: 2,
		protocol.FieldRows:         24,
		protocol.FieldCols:         80,
	}
	for field, value := range cases {
		frame, err := EncodeConfigUpdate(field, value)
		if err != nil {
			t.Fatalf("%s: encode: %v", field, err)
		}
		if len(frame) != FrameLen {
			t.Fatalf("%s: frame length = %d, want %d", field, len(frame), FrameLen)
		}
		update, err := DecodeConfigUpdate(frame)
		if err != nil {
			t.Fatalf("%s: decode: %v", field, err)
		}
		if update.Field != field || update.Value != value {
			t.Fatalf("%s: got %+v", field, update)
		}
	}
}

func TestEncodeConfigUpdateUnknownField(t *testing.T) {
	if _, err := EncodeConfigUpdate("checksum", 1); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestDecodeConfigUpdateLengthGuard(t *testing.T) {
	for _, n := range []int{0, 13, 15} {
		if _, err := DecodeConfigUpdate(make([]byte, n)); !errors.Is(err, ErrInvalidFrameLength) {
			t.Fatalf("len=%d: expected ErrInvalidFrameLength, got %v", n, err)
		}
	}
}

func TestValidateFrameDetectsEveryBitFlip(t *testing.T) {
	frame, err := EncodeConfigUpdate(protocol.FieldRegistryHash, 0xdeadbeef)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ValidateFrame(frame); err != nil {
		t.Fatalf("pristine frame failed validation: %v", err)
	}
	for byteIdx := 0; byteIdx < len(frame); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), frame...)
			corrupt[byteIdx] ^= 1 << bit
			if err := ValidateFrame(corrupt); !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("flip byte=%d bit=%d: expected ErrChecksumMismatch, got %v", byteIdx, bit, err)
			}
		}
	}
}

func TestTerminalResizeRoundTrip(t *testing.T) {
	frame := EncodeTerminalResize(24, 80)
	rows, cols, err := DecodeTerminalResize(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rows != 24 || cols != 80 {
		t.Fatalf("got rows=%d cols=%d", rows, cols)
	}
}

func TestFeatureToggleRoundTrip(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		frame := EncodeFeatureToggle(10, enabled)
		idx, got, err := DecodeFeatureToggle(frame)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if idx != 10 || got != enabled {
			t.Fatalf("got idx=%d enabled=%t, want idx=10 enabled=%t", idx, got, enabled)
		}
	}
}

func TestBulkUpdateRoundTrip(t *testing.T) {
	in := []Update{
		{Field: protocol.FieldVersion, Value: 2},
		{Field: protocol.FieldRows, Value: 50},
		{Field: protocol.FieldFeatureFlags, Value: 0x3},
	}
	frame, err := EncodeBulkUpdate(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := 1 + 13*len(in) + 1; len(frame) != want {
		t.Fatalf("bulk frame length = %d, want %d", len(frame), want)
	}
	out, err := DecodeBulkUpdate(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d updates, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("update[%d] = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestBulkUpdateGuards(t *testing.T) {
	if _, err := EncodeBulkUpdate(nil); !errors.Is(err, ErrEmptyBulkUpdate) {
		t.Fatalf("expected ErrEmptyBulkUpdate, got %v", err)
	}
	if _, err := DecodeBulkUpdate([]byte{byte(MsgBulkUpdate), 0}); !errors.Is(err, ErrInvalidFrameLength) {
		t.Fatalf("expected ErrInvalidFrameLength, got %v", err)
	}

	frame, err := EncodeBulkUpdate([]Update{{Field: protocol.FieldCols, Value: 80}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame[3] ^= 0x40
	if _, err := DecodeBulkUpdate(frame); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	const ts = uint64(1756600000000)
	got, err := DecodeHeartbeat(EncodeHeartbeat(ts))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != ts {
		t.Fatalf("timestamp = %d, want %d", got, ts)
	}
}

func TestAckRoundTrip(t *testing.T) {
	for _, original := range []MessageType{MsgConfigUpdate, MsgTerminalResize, MsgBulkUpdate, MsgHeartbeat} {
		got, err := DecodeAck(EncodeAck(original))
		if err != nil {
			t.Fatalf("%s: decode: %v", original, err)
		}
		if got != original {
			t.Fatalf("ack = %s, want %s", got, original)
		}
	}
}

func TestErrorRoundTrip(t *testing.T) {
	got, err := DecodeError(EncodeError(42))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 42 {
		t.Fatalf("code = %d, want 42", got)
	}
}

func TestGetMessageType(t *testing.T) {
	frame := EncodeHeartbeat(1)
	mt, err := GetMessageType(frame)
	if err != nil {
		t.Fatalf("get type: %v", err)
	}
	if mt != MsgHeartbeat {
		t.Fatalf("type = %s, want heartbeat", mt)
	}
	if _, err := GetMessageType(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestDecodeRejectsForeignType(t *testing.T) {
	frame := EncodeHeartbeat(7)
	if _, err := DecodeAck(frame); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}
