package doctor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/internal/handler"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/inbox"
	"github.com/jwalitptl/careflow-api/internal/service/queue"
	"github.com/jwalitptl/careflow-api/internal/service/review"
)

type Handler struct {
	review *review.Service
	inbox  *inbox.Service
	queue  *queue.Service
}

func NewHandler(reviewSvc *review.Service, inboxSvc *inbox.Service, queueSvc *queue.Service) *Handler {
	return &Handler{review: reviewSvc, inbox: inboxSvc, queue: queueSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/records", h.ListRecords)
	r.POST("/review", h.Review)
	r.POST("/message", h.SendMessage)
}

func (h *Handler) ListRecords(c *gin.Context) {
	q, err := h.queue.DoctorQueue(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) Review(c *gin.Context) {
	doctor, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	var req model.ReviewRequest
	if !handler.Bind(c, &req) {
		return
	}

	rv, err := h.review.Review(c.Request.Context(), doctor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	resp := gin.H{"success": true, "status": rv.Status}
	if rv.Issued != nil {
		resp["prescriptionId"] = rv.Issued.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SendMessage(c *gin.Context) {
	doctor, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	var req model.DoctorMessageRequest
	if !handler.Bind(c, &req) {
		return
	}

	msg, err := h.inbox.SendFromDoctor(c.Request.Context(), doctor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": msg.ID})
}
