package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"Parley/internal/service"
)

type ChatHandler interface {
	GetRoomHistory(c *gin.Context)
	GetDirectRoom(c *gin.Context)
}

type chatHandler struct {
	service service.ChatService
}

func NewChatHandler(service service.ChatService) ChatHandler {
	return &chatHandler{
		service: service,
	}
}

// GetRoomHistory returns one page of a room's messages, oldest first.
func (h *chatHandler) GetRoomHistory(c *gin.Context) {
	roomID := c.Param("roomId")
	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid page number",
		})
		return
	}

	result, err := h.service.RoomHistory(c.Request.Context(), roomID, pageNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get messages",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":   result.Data,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"total":      result.Total,
		"totalPages": result.TotalPages,
	})
}

// GetDirectRoom resolves the one-on-one room between two identities.
func (h *chatHandler) GetDirectRoom(c *gin.Context) {
	a := c.Query("a")
	b := c.Query("b")
	if a == "" || b == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Both participants are required",
		})
		return
	}

	room, err := h.service.DirectRoom(c.Request.Context(), a, b)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to look up room",
		})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No room for this pair",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room": room,
	})
}
