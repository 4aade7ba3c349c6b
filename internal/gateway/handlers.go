package gateway

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Register mounts GET /ws, GET /api/v1/missed and GET /api/v1/stream on r.
func Register(r gin.IRoutes, h *Hub) {
	r.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		conn.EnableWriteCompression(true)
		h.Register(conn)
	})

	r.GET("/api/v1/missed", func(c *gin.Context) {
		channel := c.Query("channel")
		from, err1 := strconv.ParseInt(c.Query("from"), 10, 64)
		to, err2 := strconv.ParseInt(c.DefaultQuery("to", strconv.FormatInt(h.ChannelSeq(channel), 10)), 10, 64)
		if channel == "" || err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channel and integer from/to are required"})
			return
		}
		envs := h.Missed(channel, from, to)
		out := make([]string, len(envs))
		for i, e := range envs {
			out[i] = string(e)
		}
		c.JSON(http.StatusOK, gin.H{"channel": channel, "envelopes": out})
	})

	r.GET("/api/v1/stream", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"clients": h.ClientCount(), "channels": h.Stats()})
	})
}
