package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/models"
)

func (h *Handler) Logs() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": h.sess.Logs()})
	}
}

func (h *Handler) Dashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.Summarize(h.sess.Records()))
	}
}
