package api

import (
	"fmt"
	"net/http"
	"time"

	"larkexport/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	Scheduler *service.Scheduler
	Service   *service.ExportService
	SinkMode  string // "file" or "sheet"
}

func NewAPIHandler(scheduler *service.Scheduler, service *service.ExportService, sinkMode string) *Handler {
	return &Handler{
		Scheduler: scheduler,
		Service:   service,
		SinkMode:  sinkMode,
	}
}

type ExportRequest struct {
	ChatID    string `json:"chatId" binding:"required"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.Service.ChatList(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, chats)
}

// ExportMessages runs one export. The configured sink decides the
// response shape: an xlsx attachment for the file sink, a JSON result
// for the sheet sink.
func (h *Handler) ExportMessages(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window, err := service.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.SinkMode == "sheet" {
		result, err := h.Service.ExportToSheet(c.Request.Context(), req.ChatID, window)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	data, err := h.Service.ExportToFile(c.Request.Context(), req.ChatID, window)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	filename := fmt.Sprintf("messages_%d.xlsx", time.Now().UnixMilli())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) ListExports(c *gin.Context) {
	runs, err := h.Service.ListRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": runs})
}

func (h *Handler) StartAuto(c *gin.Context) {
	if h.Scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not configured"})
		return
	}
	if h.Scheduler.IsRunning() {
		c.JSON(http.StatusOK, gin.H{"message": "Scheduler already running"})
		return
	}
	_ = h.Scheduler.Start()
	c.JSON(http.StatusOK, gin.H{"message": "Scheduler started"})
}

func (h *Handler) StopAuto(c *gin.Context) {
	if h.Scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not configured"})
		return
	}
	if !h.Scheduler.IsRunning() {
		c.JSON(http.StatusOK, gin.H{"message": "Scheduler already stopped"})
		return
	}
	_ = h.Scheduler.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "Scheduler stopped"})
}
