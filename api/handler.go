// Package api exposes the operator workflow over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/dispatch"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/reconcile"
	"github.com/mmdatafocus/boleto_notifier/session"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/sirupsen/logrus"
)

type Importer interface {
	ImportFromERP(ctx context.Context) (reconcile.ImportResult, error)
	ImportFromImage(ctx context.Context, data []byte, mimeType string) (models.Boleto, error)
}

type Dispatcher interface {
	SendOne(ctx context.Context, id string) (models.Boleto, error)
	Start(ctx context.Context, filter models.Filter) (selected int, done <-chan dispatch.Summary, err error)
	Busy() bool
}

type Directory interface {
	ListChannels(ctx context.Context, cfg models.GatewayConfig) ([]models.Channel, error)
	ListAgents(ctx context.Context, cfg models.GatewayConfig) ([]models.Agent, error)
}

type Options struct {
	EnablePushSync bool
}

type Handler struct {
	sess       *session.Session
	importer   Importer
	dispatcher Dispatcher
	directory  Directory
	opts       Options
	logger     *logrus.Logger

	background sync.WaitGroup
}

func New(sess *session.Session, importer Importer, dispatcher Dispatcher, directory Directory, opts Options) *Handler {
	return &Handler{
		sess:       sess,
		importer:   importer,
		dispatcher: dispatcher,
		directory:  directory,
		opts:       opts,
		logger:     config.GetLogger(),
	}
}

// Register mounts every operator route on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/records", h.ListRecords())
	api.DELETE("/records", h.ClearRecords())
	api.GET("/records/export", h.ExportRecords())
	api.PATCH("/records/:id", h.UpdateRecord())
	api.DELETE("/records/:id", h.DeleteRecord())
	api.POST("/records/:id/send", h.SendRecord())

	api.POST("/dispatch", h.StartDispatch())
	api.GET("/dispatch/status", h.DispatchStatus())

	api.POST("/imports/erp", h.ImportERP())
	api.POST("/imports/image", h.ImportImage())

	api.GET("/logs", h.Logs())
	api.GET("/dashboard", h.Dashboard())

	api.GET("/settings/gateway", h.GetGatewaySettings())
	api.PUT("/settings/gateway", h.PutGatewaySettings())
	api.POST("/settings/gateway/metadata", h.FetchGatewayMetadata())
	api.GET("/settings/erp", h.GetERPSettings())
	api.PUT("/settings/erp", h.PutERPSettings())
	api.POST("/settings/simulation", h.SetSimulation())
	api.GET("/settings/backup", h.ExportBackup())
	api.POST("/settings/backup", h.RestoreBackup())

	r.POST("/pubsub/erp-import", h.ERPImportPush())
}

// Wait blocks until background dispatch runs started by this handler end.
func (h *Handler) Wait() {
	h.background.Wait()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrConnectivity), errors.Is(err, reconcile.ErrVisionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, utils.ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, utils.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": utils.ErrorMessage(err)})
}
