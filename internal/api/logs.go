package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
)

type logsInput struct {
	Tail int `query:"tail" minimum:"0" default:"100" doc:"Newest entries to return, 0 for all"`
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Newest entries from the in-memory log history",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *logsInput) (*models.LogsResponse, error) {
		entries := logging.GetHistory().Tail(input.Tail)
		resp := &models.LogsResponse{}
		resp.Body.Entries = make([]models.LogEntry, 0, len(entries))
		for _, e := range entries {
			resp.Body.Entries = append(resp.Body.Entries, models.LogEntry{
				Timestamp:  e.Time.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attrs,
			})
		}
		resp.Body.Count = len(resp.Body.Entries)
		return resp, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Sends the log history first, then new entries as they are written",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing written in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for _, e := range logging.GetHistory().Tail(0) {
			if err := send.Data(events.LogEntryEvent{
				Timestamp:  e.Time.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attrs,
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
