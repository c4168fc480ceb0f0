package clerk

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/internal/handler"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/dispense"
	"github.com/jwalitptl/careflow-api/internal/service/inbox"
	"github.com/jwalitptl/careflow-api/internal/service/queue"
)

type Handler struct {
	dispense *dispense.Service
	inbox    *inbox.Service
	queue    *queue.Service
}

func NewHandler(dispenseSvc *dispense.Service, inboxSvc *inbox.Service, queueSvc *queue.Service) *Handler {
	return &Handler{dispense: dispenseSvc, inbox: inboxSvc, queue: queueSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/prescriptions", h.ListPrescriptions)
	r.GET("/dispensed", h.ListDispensed)
	r.POST("/dispense", h.Dispense)
	r.POST("/message", h.SendMessage)
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	prescriptions, err := h.queue.ClerkQueue(c.Request.Context(), c.Query("status"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prescriptions": prescriptions})
}

func (h *Handler) ListDispensed(c *gin.Context) {
	records, err := h.queue.Dispensed(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispensed": records})
}

func (h *Handler) Dispense(c *gin.Context) {
	clerk, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	var req model.DispenseRequest
	if !handler.Bind(c, &req) {
		return
	}

	d, err := h.dispense.Dispense(c.Request.Context(), clerk, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prescriptionId": d.PrescriptionID, "recordId": d.RecordID})
}

func (h *Handler) SendMessage(c *gin.Context) {
	clerk, ok := middleware.CurrentActor(c)
	if !ok {
		return
	}
	var req model.ClerkMessageRequest
	if !handler.Bind(c, &req) {
		return
	}

	msg, err := h.inbox.SendFromClerk(c.Request.Context(), clerk, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": msg.ID})
}
