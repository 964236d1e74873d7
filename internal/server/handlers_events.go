package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ashita-ai/manabi/internal/ctxutil"
	"github.com/ashita-ai/manabi/internal/model"
	"github.com/ashita-ai/manabi/internal/service/engagement"
)

// HandleIngestEvents handles POST /v1/events.
//
// The learner identity is taken from the JWT claims, never from the request
// body; a client cannot submit telemetry on behalf of another learner. The
// batch is atomic: one invalid event rejects the whole request, and a storage
// failure persists nothing.
func (h *Handlers) HandleIngestEvents(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())

	var req model.IngestEventsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if len(req.Events) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "events must not be empty")
		return
	}
	if len(req.Events) > model.MaxBatchEvents {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("batch exceeds maximum of %d events", model.MaxBatchEvents))
		return
	}

	events, err := h.engagementSvc.Ingest(r.Context(), claims.UserID, req.Events)
	if err != nil {
		// Validation failures surface as client errors; anything else is a
		// storage problem.
		if errors.Is(err, engagement.ErrInvalidEvent) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeInternalError(w, r, "failed to ingest events", err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, model.IngestEventsResponse{
		Accepted: len(events),
	})
}
