package client

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
)

func messageFromProto(msg proto.EventMessage) core.Message {
	return core.Message{
		ID:        msg.ID,
		Room:      msg.Room,
		From:      core.Identity{ID: msg.User.ID, Name: msg.User.Name},
		Body:      msg.Body,
		CreatedAt: time.UnixMilli(msg.TS).UTC(),
	}
}

func messagesFromProto(msgs []proto.EventMessage) []core.Message {
	return lo.Map(msgs, func(msg proto.EventMessage, _ int) core.Message {
		return messageFromProto(msg)
	})
}

func errorFromProto(e *proto.Error) *core.CoreError {
	if e == nil {
		return core.Rejected("unknown error")
	}
	return &core.CoreError{Code: e.Code, Message: e.Msg}
}

func decodeData[T any](frame proto.RawOutbound) (T, error) {
	var out T
	if err := json.Unmarshal(frame.Data, &out); err != nil {
		return out, core.Rejected("malformed reply: " + err.Error())
	}
	return out, nil
}
