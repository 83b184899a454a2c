package approuters

import (
	"github.com/gin-gonic/gin"

	"Parley/internal/configuration"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/py/api/chat")
	{
		chatRoute.GET("/rooms/:roomId/messages", container.ChatHandler.GetRoomHistory)
		chatRoute.GET("/rooms/direct", container.ChatHandler.GetDirectRoom)
	}
}
