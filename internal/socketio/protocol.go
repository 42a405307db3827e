package socketio

import (
	"encoding/json"
	"errors"
	"strings"
)

// Engine.IO v4 framing over a websocket text channel. Only the packet types
// the pairing/session protocol uses are implemented; events carry no ack ids.

type enginePacketType byte

const (
	engineOpen    enginePacketType = '0'
	engineClose   enginePacketType = '1'
	enginePing    enginePacketType = '2'
	enginePong    enginePacketType = '3'
	engineMessage enginePacketType = '4'
)

type socketPacketType byte

const (
	socketConnect socketPacketType = '0'
	socketEvent   socketPacketType = '2'
)

func parseOptionalNamespace(s string) (namespace string, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return "/", s
	}
	return s[:comma], s[comma+1:]
}

type eventPacket struct {
	Namespace string
	Event     string
	Payload   json.RawMessage
}

func parseEventPacket(payload string) (eventPacket, error) {
	if payload == "" {
		return eventPacket{}, errors.New("empty payload")
	}
	if payload[0] != byte(socketEvent) {
		return eventPacket{}, errors.New("not an event packet")
	}

	ns, rest := parseOptionalNamespace(payload[1:])
	if !strings.HasPrefix(rest, "[") {
		return eventPacket{}, errors.New("invalid event payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return eventPacket{}, err
	}
	if len(arr) == 0 {
		return eventPacket{}, errors.New("missing event name")
	}
	var eventName string
	if err := json.Unmarshal(arr[0], &eventName); err != nil {
		return eventPacket{}, errors.New("invalid event name")
	}

	pkt := eventPacket{Namespace: ns, Event: eventName}
	if len(arr) > 1 {
		pkt.Payload = arr[1]
	}
	return pkt, nil
}

func buildEventPacket(namespace string, event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketEvent))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.Write(data)
	return b.String(), nil
}

func buildConnectAck(namespace string, sid string) (string, error) {
	data, err := json.Marshal(map[string]string{"sid": sid})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketConnect))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.Write(data)
	return b.String(), nil
}
