package network

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/infra/storage"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/pkg/response"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityEntry is an activity log entry as shown to clients.
type ActivityEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	ActorID   string          `json:"actor_id"`
	TargetID  string          `json:"target_id,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewActivityEntry converts an in-memory event.
func NewActivityEntry(e events.LotEvent) ActivityEntry {
	entry := ActivityEntry{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Summary:   events.Summary(e),
	}
	if e.Payload != nil {
		if raw, err := json.Marshal(e.Payload); err == nil {
			entry.Payload = raw
		}
	}
	return entry
}

func entryFromRecord(r storage.ActivityRecord) ActivityEntry {
	return ActivityEntry{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Type:      r.EventType,
		ActorID:   r.ActorID,
		TargetID:  r.TargetID,
		Payload:   r.Payload,
	}
}

// ActivityResponse is the API response for activity history.
type ActivityResponse struct {
	LotID       string          `json:"lot_id"`
	Source      string          `json:"source"` // "memory" or "db"
	TotalEvents int             `json:"total_events"`
	FilteredBy  string          `json:"filtered_by,omitempty"`
	GeneratedAt string          `json:"generated_at"`
	Events      []ActivityEntry `json:"events"`
}

// ActivityHandler serves the activity history, from the durable store when one
// is configured and from the in-memory log otherwise.
type ActivityHandler struct {
	lotID    string
	eventLog *events.EventLog
	repo     storage.ActivityRepository
	logger   *logger.Logger
}

// NewActivityHandler creates a new activity handler. repo may be nil.
func NewActivityHandler(lotID string, el *events.EventLog, repo storage.ActivityRepository, log *logger.Logger) *ActivityHandler {
	return &ActivityHandler{
		lotID:    lotID,
		eventLog: el,
		repo:     repo,
		logger:   log,
	}
}

// HandleActivity returns recent activity.
// GET /api/v1/activity?type=ARRIVED&actor=car-1&limit=20&source=memory
func (ah *ActivityHandler) HandleActivity(c *gin.Context) {
	eventType := c.Query("type")
	actor := c.Query("actor")

	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type=" + eventType
	}
	if actor != "" {
		if filterDesc != "" {
			filterDesc += " "
		}
		filterDesc += "actor=" + actor
	}

	resp := ActivityResponse{
		LotID:       ah.lotID,
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
	}

	if ah.repo != nil && c.Query("source") != "memory" {
		entries, err := ah.fromRepository(c.Request.Context(), eventType, actor, limit)
		if err != nil {
			ah.logger.Error("activity query failed", "error", err)
			response.InternalError(c, "activity history unavailable")
			return
		}
		resp.Source = "db"
		resp.Events = entries
	} else {
		resp.Source = "memory"
		resp.Events = ah.fromMemory(eventType, actor, limit)
	}
	resp.TotalEvents = len(resp.Events)

	response.Success(c, resp)
}

func (ah *ActivityHandler) fromRepository(ctx context.Context, eventType, actor string, limit int) ([]ActivityEntry, error) {
	records, err := ah.repo.List(ctx, ah.lotID, storage.ActivityFilter{
		EventType: eventType,
		ActorID:   actor,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]ActivityEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, entryFromRecord(r))
	}
	return entries, nil
}

// fromMemory keeps the newest limit matches, oldest first.
func (ah *ActivityHandler) fromMemory(eventType, actor string, limit int) []ActivityEntry {
	all := ah.eventLog.Replay()
	var matched []events.LotEvent
	for _, e := range all {
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if actor != "" && e.ActorID != actor {
			continue
		}
		matched = append(matched, e)
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	entries := make([]ActivityEntry, 0, len(matched))
	for _, e := range matched {
		entries = append(entries, NewActivityEntry(e))
	}
	return entries
}

// RegisterRoutes sets up the activity routes.
func (ah *ActivityHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/activity", ah.HandleActivity)
}

