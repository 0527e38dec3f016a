package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 后台导出
type ExportHandler struct {
	exportService *service.ExportService
}

func NewExportHandler(exportService *service.ExportService) *ExportHandler {
	if exportService == nil {
		panic("ExportService cannot be nil for ExportHandler")
	}
	return &ExportHandler{exportService: exportService}
}

// ExportTables 导出最近 days 天 (默认 7，最多 90) 创建的牌桌
func (h *ExportHandler) ExportTables(c *gin.Context) {
	days := 7
	if s := c.Query("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 90 {
			ErrorResponse(c, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = n
	}

	data, err := h.exportService.ExportRooms(c.Request.Context(), days)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	filename := fmt.Sprintf("tables-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
