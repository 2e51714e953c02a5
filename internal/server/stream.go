package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/scrivener/internal/correct"
	"github.com/MrWong99/scrivener/internal/observe"
)

// streamEvent is one keystroke event on the WebSocket stream. ID is echoed
// back so clients can match replies to events.
type streamEvent struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	EventType string `json:"event_type"`
	Language  string `json:"language,omitempty"`
}

type streamReply struct {
	ID            string               `json:"id,omitempty"`
	CorrectedText string               `json:"corrected_text"`
	Corrections   []correct.Correction `json:"corrections"`
}

// handleStream upgrades to a WebSocket and answers every keystroke event
// with the corrected text, in order, until the client closes or
// [Server.CloseStreams] is called.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.closing, cancel)
	defer stop()

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx)
	log.Debug("keystroke stream opened")

	for {
		var ev streamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("keystroke stream closed by client")
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("keystroke stream read failed", "err", err)
				}
			}
			return
		}

		res, err := s.corrector.Autocorrect(ctx, correct.AutocorrectRequest{
			Text:      ev.Text,
			EventType: ev.EventType,
			Language:  ev.Language,
		})
		if err != nil {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		reply := streamReply{ID: ev.ID, CorrectedText: res.Corrected, Corrections: res.Corrections}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			log.Debug("keystroke stream write failed", "err", err)
			return
		}
	}
}
