package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
)

func (h *Handler) GetGatewaySettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.sess.GatewayConfig())
	}
}

// PutGatewaySettings replaces the gateway configuration. The fetched
// channel and agent lists are kept when the body omits them.
func (h *Handler) PutGatewaySettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg models.GatewayConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		cfg.ApiUrl = strings.TrimSpace(cfg.ApiUrl)
		cfg.ApiToken = strings.TrimSpace(cfg.ApiToken)
		if strings.TrimSpace(cfg.MessageTemplate) == "" {
			cfg.MessageTemplate = models.DefaultMessageTemplate
		}
		current := h.sess.GatewayConfig()
		if cfg.AvailableServices == nil {
			cfg.AvailableServices = current.AvailableServices
		}
		if cfg.AvailableUsers == nil {
			cfg.AvailableUsers = current.AvailableUsers
		}

		if err := h.sess.SetGatewayConfig(c.Request.Context(), cfg); err != nil {
			respondError(c, err)
			return
		}
		h.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, "gateway settings saved"))
		c.JSON(http.StatusOK, cfg)
	}
}

func (h *Handler) GetERPSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.sess.ERPConfig())
	}
}

func (h *Handler) PutERPSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg models.ERPConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		cfg.AppKey = strings.TrimSpace(cfg.AppKey)
		cfg.AppSecret = strings.TrimSpace(cfg.AppSecret)
		if cfg.LastSync == "" {
			cfg.LastSync = h.sess.ERPConfig().LastSync
		}

		if err := h.sess.SetERPConfig(c.Request.Context(), cfg); err != nil {
			respondError(c, err)
			return
		}
		h.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, "ERP settings saved"))
		c.JSON(http.StatusOK, cfg)
	}
}

// FetchGatewayMetadata loads the gateway's channels and agents into the
// configuration so records can be routed by name.
func (h *Handler) FetchGatewayMetadata() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cfg := h.sess.GatewayConfig()

		channels, err := h.directory.ListChannels(ctx, cfg)
		if err != nil {
			h.sess.AddLog(models.NewErrorLogEntry("could not load channels: "+utils.ErrorMessage(err), err))
			respondError(c, err)
			return
		}
		agents, err := h.directory.ListAgents(ctx, cfg)
		if err != nil {
			h.sess.AddLog(models.NewErrorLogEntry("could not load agents: "+utils.ErrorMessage(err), err))
			respondError(c, err)
			return
		}

		cfg = h.sess.GatewayConfig()
		cfg.AvailableServices = channels
		cfg.AvailableUsers = agents
		if err := h.sess.SetGatewayConfig(ctx, cfg); err != nil {
			respondError(c, err)
			return
		}
		h.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, fmt.Sprintf("%d channels and %d agents loaded", len(channels), len(agents))))
		c.JSON(http.StatusOK, cfg)
	}
}

type simulationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetSimulation toggles simulation mode on both integrations at once.
func (h *Handler) SetSimulation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req simulationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
			return
		}
		ctx := c.Request.Context()

		gw := h.sess.GatewayConfig()
		gw.TestMode = *req.Enabled
		if err := h.sess.SetGatewayConfig(ctx, gw); err != nil {
			respondError(c, err)
			return
		}
		erp := h.sess.ERPConfig()
		erp.TestMode = *req.Enabled
		if err := h.sess.SetERPConfig(ctx, erp); err != nil {
			respondError(c, err)
			return
		}

		msg := "simulation mode disabled"
		if *req.Enabled {
			msg = "simulation mode enabled"
		}
		h.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, msg))
		c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
	}
}

func (h *Handler) ExportBackup() gin.HandlerFunc {
	return func(c *gin.Context) {
		gw := h.sess.GatewayConfig()
		erp := h.sess.ERPConfig()
		c.Header("Content-Disposition", "attachment; filename=boleto-notifier-backup.json")
		c.JSON(http.StatusOK, models.Backup{Config: &gw, OmieConfig: &erp})
	}
}

// RestoreBackup applies whichever configurations the document carries.
func (h *Handler) RestoreBackup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var backup models.Backup
		if err := c.ShouldBindJSON(&backup); err != nil || (backup.Config == nil && backup.OmieConfig == nil) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid backup file"})
			return
		}
		ctx := c.Request.Context()

		if backup.Config != nil {
			if backup.Config.MessageTemplate == "" {
				backup.Config.MessageTemplate = models.DefaultMessageTemplate
			}
			if err := h.sess.SetGatewayConfig(ctx, *backup.Config); err != nil {
				respondError(c, err)
				return
			}
		}
		if backup.OmieConfig != nil {
			if err := h.sess.SetERPConfig(ctx, *backup.OmieConfig); err != nil {
				respondError(c, err)
				return
			}
		}
		h.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, "configuration restored"))
		c.JSON(http.StatusOK, gin.H{"restored": true})
	}
}
