// Package relay carries chat events between server instances. Every
// instance publishes to a shared broker and every instance subscribes to the
// same fixed pattern set, so an event reaches whichever node holds the
// recipient's live connection.
package relay

import (
	"strconv"
	"strings"
)

// Broker channels.
const (
	roomPrefix = "chat.room."
	readPrefix = "chat.read."

	// ActivityChannel carries RoomActivityNotice for the operator console.
	ActivityChannel = "chat.operator.activity"
	// AssignmentChannel carries AssignmentNotice for the operator console.
	AssignmentChannel = "chat.operator.assignment"
)

// Local (stream) topics.
const (
	OperatorRoomsTopic       = "/topic/operator/rooms"
	OperatorReadsTopic       = "/topic/operator/reads"
	OperatorAssignmentsTopic = "/topic/operator/assignments"
	OperatorTopicPrefix      = "/topic/operator/"
	RoomTopicPrefix          = "/topic/chat/"
)

// Patterns is the subscription set every instance registers at startup.
var Patterns = []string{
	roomPrefix + "*",
	readPrefix + "*",
	ActivityChannel,
	AssignmentChannel,
}

// RoomChannel is the broker channel for messages in roomID.
func RoomChannel(roomID int64) string { return roomPrefix + strconv.FormatInt(roomID, 10) }

// ReadChannel is the broker channel for read receipts in roomID.
func ReadChannel(roomID int64) string { return readPrefix + strconv.FormatInt(roomID, 10) }

// RoomTopic is the stream topic clients subscribe to for roomID's messages.
func RoomTopic(roomID int64) string { return RoomTopicPrefix + strconv.FormatInt(roomID, 10) }

// ReadTopic is the stream topic for roomID's read receipts.
func ReadTopic(roomID int64) string { return RoomTopic(roomID) + "/read" }

// Kind labels a channel for metrics and logs.
type Kind string

const (
	KindRoom       Kind = "room"
	KindRead       Kind = "read"
	KindActivity   Kind = "activity"
	KindAssignment Kind = "assignment"
	KindUnknown    Kind = "unknown"
)

// Classify returns the kind of channel and, for per-room channels, the room id.
func Classify(channel string) (Kind, int64) {
	switch {
	case channel == ActivityChannel:
		return KindActivity, 0
	case channel == AssignmentChannel:
		return KindAssignment, 0
	case strings.HasPrefix(channel, roomPrefix):
		if id, ok := parseID(channel[len(roomPrefix):]); ok {
			return KindRoom, id
		}
	case strings.HasPrefix(channel, readPrefix):
		if id, ok := parseID(channel[len(readPrefix):]); ok {
			return KindRead, id
		}
	}
	return KindUnknown, 0
}

// ParseRoomTopic extracts the room id from "/topic/chat/<id>" or
// "/topic/chat/<id>/read".
func ParseRoomTopic(topic string) (int64, bool) {
	if !strings.HasPrefix(topic, RoomTopicPrefix) {
		return 0, false
	}
	rest := strings.TrimSuffix(topic[len(RoomTopicPrefix):], "/read")
	return parseID(rest)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
