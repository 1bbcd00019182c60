package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"glamshot/internal/entity"
	"glamshot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetCredits 返回当前用户的积分余额，首次访问时惰性初始化。
func (h *HTTPHandler) GetCredits(c *gin.Context) {
	if h.creditService == nil {
		ServiceUnavailable(c, "credit service not available")
		return
	}

	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "需要登录")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	balance, err := h.creditService.GetBalance(ctx, requestUser.ID, requestUser.Email)
	if err != nil {
		logrus.WithError(err).WithField("user_id", requestUser.ID).Error("failed to load credit balance")
		InternalError(c, "failed to load credit balance")
		return
	}

	c.JSON(http.StatusOK, entity.CreditBalanceResponse{Credits: balance})
}

// DeductCredits 扣减积分，余额不足返回 402。
func (h *HTTPHandler) DeductCredits(c *gin.Context) {
	if h.creditService == nil {
		ServiceUnavailable(c, "credit service not available")
		return
	}

	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "需要登录")
		return
	}

	var req entity.CreditAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if req.Amount <= 0 {
		BadRequest(c, ErrCodeInvalidRequest, "amount must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	balance, err := h.creditService.Deduct(ctx, requestUser.ID, req.Amount, requestUser.Email)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientCredits) {
			PaymentRequired(c, "积分不足", gin.H{"credits": balance, "required": req.Amount})
			return
		}
		logrus.WithError(err).WithField("user_id", requestUser.ID).Error("failed to deduct credits")
		InternalError(c, "failed to deduct credits")
		return
	}

	c.JSON(http.StatusOK, entity.CreditBalanceResponse{Credits: balance})
}

// AddCredits 增加积分（购买或奖励入账）。
func (h *HTTPHandler) AddCredits(c *gin.Context) {
	if h.creditService == nil {
		ServiceUnavailable(c, "credit service not available")
		return
	}

	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "需要登录")
		return
	}

	var req entity.CreditAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if req.Amount <= 0 {
		BadRequest(c, ErrCodeInvalidRequest, "amount must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	balance, err := h.creditService.Add(ctx, requestUser.ID, req.Amount, requestUser.Email)
	if err != nil {
		logrus.WithError(err).WithField("user_id", requestUser.ID).Error("failed to add credits")
		InternalError(c, "failed to add credits")
		return
	}

	c.JSON(http.StatusOK, entity.CreditBalanceResponse{Credits: balance})
}
