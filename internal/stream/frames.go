package stream

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
)

// Client destinations.
const (
	appPrefix   = "/app/chat/"
	sendSuffix  = "/send"
	readSuffix  = "/read"
	jsonContent = "application/json"
)

var errHeartbeat = errors.New("stream: heart-beat")

// encode renders f as one WebSocket text payload (trailing NUL included).
func encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode parses one client frame. A payload that only carries EOLs is a
// heart-beat and yields errHeartbeat.
func decode(data []byte) (*frame.Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errHeartbeat
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errHeartbeat
	}
	return f, nil
}

func errorFrame(message, detail string) *frame.Frame {
	f := frame.New(frame.ERROR, frame.Message, message, frame.ContentType, "text/plain")
	f.Body = []byte(detail)
	return f
}

func receiptFrame(id string) *frame.Frame {
	return frame.New(frame.RECEIPT, frame.ReceiptId, id)
}

func messageFrame(topic, subID, messageID string, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Destination, topic,
		frame.Subscription, subID,
		frame.MessageId, messageID,
		frame.ContentType, jsonContent,
	)
	f.Body = body
	return f
}

// header returns the first non-empty value among keys. STOMP headers are
// case sensitive but clients disagree on "Authorization" casing.
func header(f *frame.Frame, keys ...string) string {
	for _, k := range keys {
		if v := f.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// parseAppDestination splits "/app/chat/{id}/send" and "/app/chat/{id}/read".
func parseAppDestination(dest string) (roomID int64, action string, ok bool) {
	rest, found := strings.CutPrefix(dest, appPrefix)
	if !found {
		return 0, "", false
	}
	switch {
	case strings.HasSuffix(rest, sendSuffix):
		action, rest = "send", strings.TrimSuffix(rest, sendSuffix)
	case strings.HasSuffix(rest, readSuffix):
		action, rest = "read", strings.TrimSuffix(rest, readSuffix)
	default:
		return 0, "", false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, action, true
}
