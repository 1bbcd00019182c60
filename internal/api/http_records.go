package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"glamshot/internal/entity"
	"glamshot/internal/records"
	"glamshot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ListRecords 返回当前作用域（用户或游客）的记录列表，边读边修复。
func (h *HTTPHandler) ListRecords(c *gin.Context) {
	if h.recordService == nil {
		ServiceUnavailable(c, "record service not available")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	healed := h.recordService.GetHealedRecords(ctx, ownerScope(c))
	for i := range healed {
		healed[i].PrimaryMediaRef = h.publicURL(healed[i].PrimaryMediaRef)
		if healed[i].ResultMediaRef != "" {
			healed[i].ResultMediaRef = h.publicURL(healed[i].ResultMediaRef)
		}
	}

	c.JSON(http.StatusOK, entity.RecordListResponse{Records: healed})
}

// CreateRecord 上传媒体并落一条新记录。
func (h *HTTPHandler) CreateRecord(c *gin.Context) {
	if h.recordService == nil {
		ServiceUnavailable(c, "record service not available")
		return
	}

	var req entity.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if strings.TrimSpace(req.Media) == "" {
		MissingField(c, "media")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 120*time.Second)
	defer cancel()

	record, err := h.recordService.CreateRecord(ctx, ownerScope(c), req.Media, service.CreateRecordOptions{
		Description: req.Description,
		Tags:        req.Tags,
		HasResult:   req.HasResult,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to create record")
		InternalError(c, "failed to create record")
		return
	}

	c.JSON(http.StatusCreated, entity.RecordDetailResponse{Record: *record})
}

// DeleteRecord 删除一条记录，本地失败向调用方报错。
func (h *HTTPHandler) DeleteRecord(c *gin.Context) {
	if h.recordService == nil {
		ServiceUnavailable(c, "record service not available")
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		BadRequest(c, ErrCodeInvalidRequest, "invalid record id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.recordService.DeleteRecord(ctx, ownerScope(c), id); err != nil {
		if errors.Is(err, records.ErrRecordNotFound) {
			NotFound(c, ErrCodeRecordNotFound, "record not found")
			return
		}
		logrus.WithError(err).WithField("record_id", id).Error("failed to delete record")
		InternalError(c, "failed to delete record")
		return
	}

	c.Status(http.StatusNoContent)
}

// SyncRecords 从云端账本拉取本地缺失的记录，需要登录。
func (h *HTTPHandler) SyncRecords(c *gin.Context) {
	if h.recordService == nil {
		ServiceUnavailable(c, "record service not available")
		return
	}

	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "需要登录")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	inserted, err := h.recordService.SyncFromCloud(ctx, requestUser.ID)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", requestUser.ID).Error("failed to sync records from cloud")
		ErrorResponse(c, http.StatusBadGateway, ErrCodeSyncFailed, "failed to sync records from cloud")
		return
	}

	c.JSON(http.StatusOK, entity.SyncResponse{Inserted: inserted})
}
