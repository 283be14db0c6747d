package http

import (
	"encoding/json"

	"github.com/samber/lo"

	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed data"}
		}
		if join.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeave {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Ref: inbound.ID, Room: join.Room}, nil
	case proto.InboundTypePublish:
		var msg proto.PublishData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed data"}
		}
		if msg.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}
		}
		return &core.Command{
			Kind: core.CommandPublish,
			Ref:  inbound.ID,
			Room: msg.Room,
			// ID and timestamp are assigned by the broadcaster.
			Body: msg.Body,
		}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessage,
			Data:  messageToProto(event.Message),
		}
	case core.EventHistory:
		return proto.Outbound{
			Type:  proto.OutboundTypeAck,
			ID:    event.Ref,
			Event: proto.EventNameHistory,
			Data: proto.EventHistory{
				Accepted: true,
				Room:     event.Room,
				Messages: messagesToProto(event.Messages),
			},
		}
	case core.EventLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeAck,
			ID:    event.Ref,
			Event: proto.EventNameLeft,
			Data:  proto.EventLeft{Accepted: true, Room: event.Room},
		}
	case core.EventPublished:
		return proto.Outbound{
			Type:  proto.OutboundTypeAck,
			ID:    event.Ref,
			Event: proto.EventNameMessage,
			Data:  proto.EventPublished{Accepted: true, Message: messageToProto(event.Message)},
		}
	case core.EventIdentified:
		return proto.Outbound{
			Type:  proto.OutboundTypeAck,
			ID:    event.Ref,
			Event: proto.EventNameHello,
			Data: proto.EventHello{
				User:     proto.User{ID: event.Identity.ID, Name: event.Identity.Name},
				Protocol: proto.ProtocolVersion,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, ID: event.Ref, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			ID:    event.Ref,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messageToProto(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:   msg.ID,
		Room: msg.Room,
		User: proto.User{ID: msg.From.ID, Name: msg.From.Name},
		Body: msg.Body,
		TS:   msg.CreatedAt.UnixMilli(),
	}
}

func messagesToProto(msgs []core.Message) []proto.EventMessage {
	return lo.Map(msgs, func(msg core.Message, _ int) proto.EventMessage {
		return messageToProto(msg)
	})
}
