package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketpay/internal/logger"
	"marketpay/internal/service"
	"marketpay/pkg/response"
)

// fail 按错误分类输出，存储类错误不把内部信息返回给调用方
func (h *Handler) fail(c *gin.Context, err error, data interface{}) {
	status, code := statusOf(err)
	message := "服务器内部错误"

	var appErr *service.AppError
	if errors.As(err, &appErr) && appErr.Kind != service.KindPersistence {
		message = appErr.Message
	}

	entry := h.log.WithError(err).WithFields(logrus.Fields{
		"path":       c.FullPath(),
		"request_id": logger.RequestIDFrom(c.Request.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("请求处理失败")
	} else {
		entry.Debug("请求被拒绝")
	}

	_ = c.Error(err).SetType(gin.ErrorTypePrivate)
	response.Fail(c, status, code, message, data)
}

func statusOf(err error) (int, int) {
	switch service.KindOf(err) {
	case service.KindValidation:
		return http.StatusBadRequest, response.CodeParamError
	case service.KindInvalidItem:
		return http.StatusBadRequest, response.CodeInvalidItem
	case service.KindInsufficientFunds:
		return http.StatusBadRequest, response.CodeInsufficientBalance
	case service.KindNotFound:
		return http.StatusNotFound, response.CodeNotFound
	case service.KindConflict:
		return http.StatusConflict, response.CodeDuplicateRequest
	case service.KindExternal:
		var appErr *service.AppError
		if errors.As(err, &appErr) && appErr.Retryable {
			return http.StatusAccepted, response.CodeProcessorPending
		}
		return http.StatusBadGateway, response.CodeProcessorRejected
	default:
		return http.StatusInternalServerError, response.CodeServerError
	}
}
