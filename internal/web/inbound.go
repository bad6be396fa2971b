package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/emotive/pkg/types"
)

// Inbound message types accepted from websocket clients.
const (
	MsgTranscript  = "transcript"
	MsgProsody     = "prosody"
	MsgSelect      = "select"
	MsgSelectMedia = "select_media"
	MsgClear       = "clear"
)

type selectMediaPayload struct {
	ID string `json:"id"`
}

// handleInbound lets UI clients drive the same operations as the REST API
// over their websocket.
func (s *Server) handleInbound(ctx context.Context, _ string, msg Envelope) error {
	switch msg.Type {
	case MsgTranscript:
		var ev types.TranscriptEvent
		if err := decodePayload(msg, &ev); err != nil {
			return err
		}
		return s.ingest(ctx, ev)

	case MsgProsody:
		var f types.ProsodyFeatures
		if err := decodePayload(msg, &f); err != nil {
			return err
		}
		s.orch.SubmitProsody(f)
		return nil

	case MsgSelect:
		var req selectRequest
		if err := decodePayload(msg, &req); err != nil {
			return err
		}
		_, err := s.selectSuggestion(ctx, req)
		return err

	case MsgSelectMedia:
		var p selectMediaPayload
		if err := decodePayload(msg, &p); err != nil {
			return err
		}
		_, err := s.selectMedia(ctx, p.ID)
		return err

	case MsgClear:
		s.orch.ClearSuggestions()
		return nil

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func decodePayload(msg Envelope, v any) error {
	if len(msg.Payload) == 0 {
		return errors.New(msg.Type + ": missing payload")
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", msg.Type, err)
	}
	return nil
}
