package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

var errMalformedPacket = errors.New("malformed socket.io packet")

// openPayload is the Engine.IO handshake sent by the server.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // ms
	PingTimeout  int    `json:"pingTimeout"`  // ms
	MaxPayload   int    `json:"maxPayload"`
}

// frame is one decoded websocket text frame.
type frame struct {
	engine    byte
	socket    byte // zero unless engine == eioMessage
	namespace string
	ackID     string
	data      json.RawMessage
}

// decodeFrame parses "<eio>[<sio>[/nsp,][ackid]<json>]".
func decodeFrame(s string) (frame, error) {
	if s == "" {
		return frame{}, errMalformedPacket
	}
	f := frame{engine: s[0]}
	rest := s[1:]

	if f.engine != eioMessage {
		f.data = json.RawMessage(rest)
		return f, nil
	}
	if rest == "" {
		return frame{}, errMalformedPacket
	}

	f.socket = rest[0]
	rest = rest[1:]

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			f.namespace = rest
			return f, nil
		}
		f.namespace = rest[:i]
		rest = rest[i+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	f.ackID = rest[:i]
	f.data = json.RawMessage(rest[i:])
	return f, nil
}

// encodeConnect builds the CONNECT packet for the default namespace.
func encodeConnect(auth interface{}) (string, error) {
	if auth == nil {
		return string([]byte{eioMessage, sioConnect}), nil
	}
	data, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}
	return string([]byte{eioMessage, sioConnect}) + string(data), nil
}

// encodeEvent builds `42["event",payload]`.
func encodeEvent(event string, payload interface{}) (string, error) {
	args := []interface{}{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string([]byte{eioMessage, sioEvent}) + string(data), nil
}

// decodeEvent splits an EVENT payload into its name and arguments.
func decodeEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errMalformedPacket, err)
	}
	if len(parts) == 0 {
		return "", nil, errMalformedPacket
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", errMalformedPacket, err)
	}
	return name, parts[1:], nil
}

// connectErrorMessage extracts the reason from a CONNECT_ERROR payload.
func connectErrorMessage(data json.RawMessage) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	return "connection rejected"
}
