package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/xuri/excelize/v2"
)

func bindFilter(c *gin.Context) (models.Filter, bool) {
	var f models.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
		return f, false
	}
	switch f.View {
	case "", models.FilterViewAll, models.FilterViewPending, models.FilterViewSent:
		return f, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "view must be one of all, pending, sent"})
	return f, false
}

func (h *Handler) ListRecords() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindFilter(c)
		if !ok {
			return
		}
		records := f.Apply(h.sess.Records())
		c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
	}
}

func (h *Handler) UpdateRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch models.BoletoPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		b, err := h.sess.UpdateRecord(c.Request.Context(), c.Param("id"), func(b *models.Boleto) error {
			*b = patch.Apply(*b)
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}

		resp := gin.H{"record": b}
		if patch.Phone != nil && b.Phone != "" {
			if err := utils.ValidatePhoneNumber("+"+utils.WithCountryPrefix(b.Phone), utils.CountryCode); err != nil {
				resp["warning"] = "phone number does not look valid: " + err.Error()
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handler) DeleteRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.sess.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) ClearRecords() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.dispatcher.Busy() {
			respondError(c, utils.ErrBusy)
			return
		}
		if err := h.sess.Clear(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		h.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, "queue cleared"))
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) SendRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		// a started send must finish and be recorded even if the caller goes away
		b, err := h.dispatcher.SendOne(context.WithoutCancel(c.Request.Context()), c.Param("id"))
		if err != nil {
			resp := gin.H{"error": utils.ErrorMessage(err)}
			if b.ID != "" {
				resp["record"] = b
			}
			c.JSON(statusFor(err), resp)
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": b})
	}
}

var exportHeaders = []string{"ID", "Cliente", "Telefone", "Valor", "Vencimento", "Status", "Erro", "Vendedor", "Categoria", "Link", "Código de Barras"}

// ExportRecords writes the filtered view as an XLSX workbook.
func (h *Handler) ExportRecords() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindFilter(c)
		if !ok {
			return
		}
		records := f.Apply(h.sess.Records())

		book, err := buildWorkbook(records)
		if err != nil {
			config.LogError(h.logger, "api", "ExportRecords", "build workbook", len(records), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export"})
			return
		}
		defer book.Close()

		name := fmt.Sprintf("boletos-%s.xlsx", time.Now().Format("2006-01-02"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+name)
		if err := book.Write(c.Writer); err != nil {
			config.LogError(h.logger, "api", "ExportRecords", "write workbook", len(records), err)
		}
	}
}

func buildWorkbook(records []models.Boleto) (*excelize.File, error) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)

	if err := book.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return nil, err
	}
	for i, b := range records {
		amount, _ := b.Amount.Float64()
		row := []any{
			b.ID, b.CustomerName, b.Phone, amount, b.DueDate, string(b.Status),
			b.Error, b.Vendedor, b.Category, b.BoletoURL, b.Barcode,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return book, nil
}
