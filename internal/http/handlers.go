package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
	"github.com/kingdavid28/chatstatus/internal/status"
)

type updateStatusRequest struct {
	Status    string `json:"status"`
	ActorID   string `json:"actor_id"`
	Force     bool   `json:"force,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type updateStatusResponse struct {
	Applied bool `json:"applied"`
}

type confirmRequest struct {
	ActorID string `json:"actor_id"`
}

type trackRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
}

type apiStatusRecord struct {
	Status      string `json:"status"`
	Icon        string `json:"icon,omitempty"`
	SendingAt   string `json:"sending_at,omitempty"`
	QueuedAt    string `json:"queued_at,omitempty"`
	SentAt      string `json:"sent_at,omitempty"`
	SentBy      string `json:"sent_by,omitempty"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	DeliveredBy string `json:"delivered_by,omitempty"`
	ReadAt      string `json:"read_at,omitempty"`
	ReadBy      string `json:"read_by,omitempty"`
	FailedAt    string `json:"failed_at,omitempty"`
	FailedBy    string `json:"failed_by,omitempty"`
}

func toAPIRecord(rec core.StatusRecord) apiStatusRecord {
	st := rec.Status
	if st == "" {
		st = core.StatusSent
	}
	return apiStatusRecord{
		Status:      string(st),
		Icon:        st.Icon(),
		SendingAt:   formatTime(rec.SendingAt),
		QueuedAt:    formatTime(rec.QueuedAt),
		SentAt:      formatTime(rec.SentAt),
		SentBy:      rec.SentBy,
		DeliveredAt: formatTime(rec.DeliveredAt),
		DeliveredBy: rec.DeliveredBy,
		ReadAt:      formatTime(rec.ReadAt),
		ReadBy:      rec.ReadBy,
		FailedAt:    formatTime(rec.FailedAt),
		FailedBy:    rec.FailedBy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// handleConversation dispatches /api/conversations/{conv}/messages/{msg}/{action}.
func (s *Service) handleConversation(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/conversations/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "messages" || parts[0] == "" || parts[2] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conversationID, messageID, action := parts[0], parts[2], parts[3]

	switch action {
	case "status":
		switch r.Method {
		case http.MethodGet:
			s.handleGetStatus(w, r, conversationID, messageID)
		case http.MethodPost:
			s.handleUpdateStatus(w, r, conversationID, messageID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "confirm-delivery":
		s.handleConfirm(w, r, conversationID, messageID, core.StatusDelivered)
	case "confirm-read":
		s.handleConfirm(w, r, conversationID, messageID, core.StatusRead)
	case "track":
		s.handleTrack(w, r, conversationID, messageID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Service) handleUpdateStatus(w http.ResponseWriter, r *http.Request, conversationID, messageID string) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	newStatus := core.Status(req.Status)
	if !newStatus.Valid() || strings.TrimSpace(req.ActorID) == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	opts := status.Options{Force: req.Force}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		opts.Timestamp = ts
	}

	applied, err := s.session.Status().UpdateStatus(r.Context(), conversationID, messageID, newStatus, req.ActorID, opts)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	writeJSON(w, updateStatusResponse{Applied: applied})
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request, conversationID, messageID string) {
	rec, ok, err := s.session.Status().GetMessageRecord(r.Context(), conversationID, messageID)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, toAPIRecord(rec))
}

func (s *Service) handleConfirm(w http.ResponseWriter, r *http.Request, conversationID, messageID string, to core.Status) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ActorID) == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var applied bool
	var err error
	if to == core.StatusRead {
		applied, err = s.session.Delivery().ConfirmRead(r.Context(), conversationID, messageID, req.ActorID)
	} else {
		applied, err = s.session.Delivery().ConfirmDelivery(r.Context(), conversationID, messageID, req.ActorID)
	}
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	writeJSON(w, updateStatusResponse{Applied: applied})
}

func (s *Service) handleTrack(w http.ResponseWriter, r *http.Request, conversationID, messageID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SenderID) == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.session.Delivery().StartDeliveryTracking(conversationID, messageID, req.SenderID, req.RecipientID)
	writeJSON(w, map[string]bool{"tracking": true})
}

type batchRequest struct {
	Updates []batchItem `json:"updates"`
}

type batchItem struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Status         string `json:"status"`
	ActorID        string `json:"actor_id"`
	Force          bool   `json:"force,omitempty"`
}

type batchResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Applied        bool   `json:"applied"`
	Error          string `json:"error,omitempty"`
}

func (s *Service) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	updates := make([]status.Update, len(req.Updates))
	for i, u := range req.Updates {
		updates[i] = status.Update{
			ConversationID: u.ConversationID,
			MessageID:      u.MessageID,
			Status:         core.Status(u.Status),
			ActorID:        u.ActorID,
			Options:        status.Options{Force: u.Force},
		}
	}
	results := s.session.Status().BatchUpdateStatus(r.Context(), updates)
	out := make([]batchResult, len(results))
	for i, res := range results {
		out[i] = batchResult{
			ConversationID: res.Update.ConversationID,
			MessageID:      res.Update.MessageID,
			Applied:        res.Applied,
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, map[string]any{"results": out})
}

type statsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	OldestID string         `json:"oldest_id,omitempty"`
	NewestID string         `json:"newest_id,omitempty"`
}

func (s *Service) handleTrackingStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats := s.session.Tracking().GetTrackingStats()
	resp := statsResponse{
		Total:    stats.Total,
		ByStatus: make(map[string]int, len(stats.ByStatus)),
		OldestID: stats.OldestID,
		NewestID: stats.NewestID,
	}
	for st, n := range stats.ByStatus {
		resp.ByStatus[string(st)] = n
	}
	writeJSON(w, resp)
}

type cleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours,omitempty"`
}

func (s *Service) handleTrackingCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cleanupRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	removed := s.session.Tracking().Cleanup(time.Duration(req.MaxAgeHours) * time.Hour)
	writeJSON(w, map[string]int{"removed": removed})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
