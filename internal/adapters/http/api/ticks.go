package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/types"
)

// TickDependencies defines the tick intake: deduplication plus a bounded
// queue.
type TickDependencies interface {
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
	// Enqueue pushes a tick for async processing. Returns false on backpressure.
	Enqueue(ctx context.Context, t model.Tick) bool
}

// TicksHandler handles tick submissions.
type TicksHandler struct {
	deps TickDependencies
	now  func() time.Time
}

// NewTicksHandler creates a new ticks handler.
func NewTicksHandler(deps TickDependencies) *TicksHandler {
	return &TicksHandler{deps: deps, now: time.Now}
}

// HandlePostTick handles POST /ticks requests.
func (h *TicksHandler) HandlePostTick(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_tick"
	var req types.TickMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	t, err := req.Tick(h.now())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}

	if h.deps.SeenAndRecord(r.Context(), t.TickID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	if ok := h.deps.Enqueue(r.Context(), t); !ok {
		// Forget the id so the client can retry.
		h.deps.Unrecord(r.Context(), t.TickID)
		writeError(w, NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
