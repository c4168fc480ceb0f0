package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/internal/handler"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/inbox"
	"github.com/jwalitptl/careflow-api/internal/service/queue"
	"github.com/jwalitptl/careflow-api/internal/service/submission"
	"github.com/jwalitptl/careflow-api/pkg/realtime"
)

type Handler struct {
	submission *submission.Service
	inbox      *inbox.Service
	queue      *queue.Service
	hub        *realtime.Hub
	upgrader   *websocket.Upgrader
}

func NewHandler(
	submissionSvc *submission.Service,
	inboxSvc *inbox.Service,
	queueSvc *queue.Service,
	hub *realtime.Hub,
	upgrader *websocket.Upgrader,
) *Handler {
	return &Handler{
		submission: submissionSvc,
		inbox:      inboxSvc,
		queue:      queueSvc,
		hub:        hub,
		upgrader:   upgrader,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/submit", h.Submit)
	r.GET("/records", h.ListRecords)
	r.GET("/messages", h.ListMessages)
	r.POST("/messages/:id/read", h.MarkMessageRead)
	r.GET("/notifications", h.ListNotifications)
	r.POST("/notifications/:id/read", h.MarkNotificationRead)
	if h.hub != nil {
		r.GET("/stream", h.Stream)
	}
}

func (h *Handler) Submit(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	var req model.SubmitRecordRequest
	if !handler.Bind(c, &req) {
		return
	}

	record, err := h.submission.Submit(c.Request.Context(), patient, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "recordId": record.ID})
}

func (h *Handler) ListRecords(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	records, err := h.queue.PatientHistory(c.Request.Context(), patient)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) ListMessages(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	messages, err := h.inbox.Messages(c.Request.Context(), patient)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	notifications, err := h.inbox.Notifications(c.Request.Context(), patient)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) MarkMessageRead(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	updated, err := h.inbox.MarkMessageRead(c.Request.Context(), patient, c.Param("id"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MarkReadResponse{Success: true, Updated: updated})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	updated, err := h.inbox.MarkNotificationRead(c.Request.Context(), patient, c.Param("id"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MarkReadResponse{Success: true, Updated: updated})
}

// Stream upgrades to a websocket carrying the patient's relayed events
func (h *Handler) Stream(c *gin.Context) {
	patient, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	// the upgrader has already answered the client on failure
	if err := h.hub.Serve(h.upgrader, c.Writer, c.Request, patient.ID); err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("Stream upgrade failed")
	}
}
