package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/engine"
	"github.com/trannm/healthpulse/internal/gate"
	"github.com/trannm/healthpulse/internal/model"
	"github.com/trannm/healthpulse/internal/repository"
	"github.com/trannm/healthpulse/internal/syncqueue"
	"github.com/trannm/healthpulse/pkg/push"
	"go.uber.org/zap"
)

// AdminHandler is the ops surface: queue introspection, manual triggers,
// bulk retry, templates, sync jobs and push-provider control.
type AdminHandler struct {
	queue     *repository.QueueRepository
	logs      *repository.DeliveryLogRepository
	templates *repository.TemplateRepository
	populator *engine.Populator
	gate      *gate.Gate
	syncQueue *syncqueue.Queue
	pusher    *push.Adapter
	log       *zap.Logger
}

func NewAdminHandler(queue *repository.QueueRepository, logs *repository.DeliveryLogRepository, templates *repository.TemplateRepository, populator *engine.Populator, g *gate.Gate, syncQueue *syncqueue.Queue, pusher *push.Adapter, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		queue:     queue,
		logs:      logs,
		templates: templates,
		populator: populator,
		gate:      g,
		syncQueue: syncQueue,
		pusher:    pusher,
		log:       log,
	}
}

// QueueStats reports queue depth per status and the trailing-24h success rate
func (h *AdminHandler) QueueStats(c *gin.Context) {
	counts, err := h.queue.CountsByStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not read queue"})
		return
	}
	rate, err := h.logs.SuccessRate(time.Now().Add(-24 * time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not read delivery log"})
		return
	}

	c.JSON(http.StatusOK, model.QueueStatsResponse{
		Counts:      counts,
		SuccessRate: rate,
		Window:      "24h",
	})
}

// EntryHistory returns the full attempt trail of one queue entry
func (h *AdminHandler) EntryHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid entry id"})
		return
	}
	rows, err := h.logs.ForQueueEntry(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not read delivery log"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// TriggerUser enqueues an immediately-claimable occurrence for a user.
// Conflicts with the day's scheduled occurrence surface as 409.
func (h *AdminHandler) TriggerUser(c *gin.Context) {
	var req model.TriggerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Unknown notification type"})
		return
	}

	created, err := h.populator.EnqueueAdHoc(req.UserID, req.Type, nil)
	if err != nil {
		h.log.Error("manual trigger failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not enqueue", Message: err.Error()})
		return
	}
	if !created {
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "An occurrence for this user, type and day already exists"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Enqueued"})
}

// BulkRetry requeues recently dead-lettered entries
func (h *AdminHandler) BulkRetry(c *gin.Context) {
	var req model.BulkRetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	window := time.Duration(req.SinceSeconds) * time.Second
	if window <= 0 {
		window = 24 * time.Hour
	}

	n, err := h.queue.RequeueRecentFailed(time.Now().Add(-window))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not requeue"})
		return
	}
	h.log.Info("🔁 Bulk retry", zap.Int64("requeued", n))
	c.JSON(http.StatusOK, model.BulkRetryResponse{Requeued: n})
}

// FlushPending skips everything not yet delivered for a user
func (h *AdminHandler) FlushPending(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid user id"})
		return
	}

	n, err := h.gate.FlushPending(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not flush"})
		return
	}
	c.JSON(http.StatusOK, model.FlushPendingResponse{Flushed: n})
}

// UpsertTemplate creates or updates the content for a notification type
func (h *AdminHandler) UpsertTemplate(c *gin.Context) {
	var req model.UpsertTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Unknown notification type"})
		return
	}

	var metadata json.RawMessage
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid metadata"})
			return
		}
		metadata = raw
	}

	tpl := model.Template{
		Type:     req.Type,
		Title:    req.Title,
		Body:     req.Body,
		Metadata: metadata,
	}
	if err := h.templates.Upsert(&tpl); err != nil {
		h.log.Error("template upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not save template"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// ListTemplates returns every template
func (h *AdminHandler) ListTemplates(c *gin.Context) {
	tpls, err := h.templates.ListAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not list templates"})
		return
	}
	c.JSON(http.StatusOK, tpls)
}

// EnqueueSync queues rate-limited third-party sync jobs
func (h *AdminHandler) EnqueueSync(c *gin.Context) {
	var req model.SyncEnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	resp := model.SyncEnqueueResponse{}
	for _, id := range req.UserIDs {
		if h.syncQueue.Enqueue(id) {
			resp.Accepted++
		} else {
			resp.Deduped++
		}
	}
	c.JSON(http.StatusAccepted, resp)
}

// ReinitializePush swaps the push-provider credentials at runtime
func (h *AdminHandler) ReinitializePush(c *gin.Context) {
	var req model.ReinitializePushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	h.pusher.Reinitialize(push.Config{CredentialsFile: req.CredentialsFile})
	c.JSON(http.StatusOK, gin.H{"message": "Push adapter reinitialized", "configured": req.CredentialsFile != ""})
}
