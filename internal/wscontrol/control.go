// Package wscontrol serves the binary config subprotocol over WebSocket.
//
// Clients send the fixed 14-byte control frames (or variable-length bulk
// frames); every applied frame is acknowledged with an ACK frame, and
// malformed or invariant-violating frames get an ERROR frame plus a JSON
// sideband message carrying the human-readable text.
package wscontrol

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/danmuck/edgeproxy/internal/protocol"
	"github.com/danmuck/edgeproxy/internal/protocol/subproto"
)

// Subprotocol is the negotiated WebSocket subprotocol name.
const Subprotocol = "edge-config.v1"

// ErrorDetail is the JSON sideband for an ERROR frame.
type ErrorDetail struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// Handler upgrades the request and runs the frame loop. Each connection
// gets its own Session seeded from baseline.
func Handler(baseline protocol.ConfigState, log zerolog.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		session := NewSession(baseline)
		connLog := log.With().Str("remote", conn.RemoteAddr().String()).Logger()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				connLog.Debug().Err(err).Msg("websocket closed")
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			if err := handleFrame(conn, session, data, connLog); err != nil {
				connLog.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func handleFrame(conn *websocket.Conn, session *Session, frame []byte, log zerolog.Logger) error {
	msgType, err := subproto.GetMessageType(frame)
	if err != nil {
		return sendError(conn, ErrCodeBadFrame, "empty frame")
	}
	if err := subproto.ValidateFrame(frame); err != nil {
		log.Warn().Str("type", msgType.String()).Err(err).Msg("frame failed checksum")
		return sendError(conn, ErrCodeBadFrame, err.Error())
	}

	switch msgType {
	case subproto.MsgConfigUpdate:
		update, err := subproto.DecodeConfigUpdate(frame)
		if err != nil {
			return sendError(conn, ErrCodeUnknownField, err.Error())
		}
		if code, ok := session.ApplyUpdate(update); !ok {
			return sendError(conn, code, "update violates config invariants")
		}
		return sendAck(conn, msgType)

	case subproto.MsgTerminalResize:
		rows, cols, err := subproto.DecodeTerminalResize(frame)
		if err != nil {
			return sendError(conn, ErrCodeBadFrame, err.Error())
		}
		if code, ok := session.ApplyResize(rows, cols); !ok {
			return sendError(conn, code, "resize out of range")
		}
		return sendAck(conn, msgType)

	case subproto.MsgFeatureToggle:
		flagIndex, enabled, err := subproto.DecodeFeatureToggle(frame)
		if err != nil {
			return sendError(conn, ErrCodeBadFrame, err.Error())
		}
		if code, ok := session.ApplyToggle(flagIndex, enabled); !ok {
			return sendError(conn, code, "flag index targets a reserved bit")
		}
		return sendAck(conn, msgType)

	case subproto.MsgBulkUpdate:
		updates, err := subproto.DecodeBulkUpdate(frame)
		if err != nil {
			return sendError(conn, ErrCodeBadFrame, err.Error())
		}
		if code, ok := session.ApplyBulk(updates); !ok {
			return sendError(conn, code, "bulk update violates config invariants")
		}
		return sendAck(conn, msgType)

	case subproto.MsgHeartbeat:
		if _, err := subproto.DecodeHeartbeat(frame); err != nil {
			return sendError(conn, ErrCodeBadFrame, err.Error())
		}
		reply := subproto.EncodeHeartbeat(uint64(time.Now().UnixMilli()))
		return conn.WriteMessage(websocket.BinaryMessage, reply)

	case subproto.MsgAck, subproto.MsgError:
		// Peers may echo acks or errors; nothing to apply.
		return nil

	default:
		return sendError(conn, ErrCodeUnknownType, "unknown message type")
	}
}

func sendAck(conn *websocket.Conn, original subproto.MessageType) error {
	return conn.WriteMessage(websocket.BinaryMessage, subproto.EncodeAck(original))
}

func sendError(conn *websocket.Conn, code uint32, message string) error {
	if err := conn.WriteMessage(websocket.BinaryMessage, subproto.EncodeError(code)); err != nil {
		return err
	}
	return conn.WriteJSON(ErrorDetail{Code: code, Message: message})
}
