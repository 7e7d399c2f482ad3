package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/utils"
)

const TriggerBulk = "bulk"

// StartDispatch claims a bulk send over the filtered view and lets it run in
// the background. The run outlives the request; progress shows up in the
// records and the log.
func (h *Handler) StartDispatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindFilter(c)
		if !ok {
			return
		}
		ctx := utils.SetTriggerInContext(context.WithoutCancel(c.Request.Context()), TriggerBulk)
		selected, done, err := h.dispatcher.Start(ctx, f)
		if err != nil {
			if !errors.Is(err, utils.ErrBusy) {
				config.LogError(h.logger, "api", "StartDispatch", "start", f, err)
			}
			respondError(c, err)
			return
		}
		if selected == 0 {
			c.JSON(http.StatusOK, gin.H{"started": false, "selected": 0})
			return
		}

		h.background.Add(1)
		go func() {
			defer h.background.Done()
			<-done
		}()
		c.JSON(http.StatusAccepted, gin.H{"started": true, "selected": selected})
	}
}

func (h *Handler) DispatchStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"busy": h.dispatcher.Busy()})
	}
}
