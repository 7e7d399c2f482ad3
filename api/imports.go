package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/events"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadBytes = 20 << 20
	TriggerPubSub  = "pubsub"
)

func (h *Handler) ImportERP() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.importer.ImportFromERP(context.WithoutCancel(c.Request.Context()))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ImportImage reads the multipart "file" field and extracts one invoice.
func (h *Handler) ImportImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fh.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		src, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer src.Close()
		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}

		mimeType := strings.TrimSpace(fh.Header.Get("Content-Type"))
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(data)
		}

		b, err := h.importer.ImportFromImage(c.Request.Context(), data, mimeType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"record": b})
	}
}

// ERPImportPush handles Pub/Sub push deliveries. It always answers 204 so
// malformed or failed messages are not redelivered forever.
func (h *Handler) ERPImportPush() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.opts.EnablePushSync {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		envelope, payload, err := events.DecodeERPImport(body)
		if err != nil {
			config.LogWarn(h.logger, "api", "ERPImportPush", "decode envelope", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		ctx := utils.SetTriggerInContext(context.WithoutCancel(c.Request.Context()), TriggerPubSub)
		res, err := h.importer.ImportFromERP(ctx)
		if err != nil && !errors.Is(err, utils.ErrValidation) {
			config.LogError(h.logger, "api", "ERPImportPush", "import", envelope.Message.MessageId, err)
		}
		if err == nil {
			h.logger.WithFields(logrus.Fields{
				"message_id": envelope.Message.MessageId,
				"reason":     payload.Reason,
				"added":      res.Added,
			}).Info("erp import from push")
		}
		c.Status(http.StatusNoContent)
	}
}
