package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/middleware"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo carries the machine readable part of a failure.
type ErrorInfo struct {
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Code: http.StatusOK, Message: message, Data: data})
}

// statusFor maps a service error to its HTTP status and user facing message.
func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	var cerr *domain.ComparisonError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &cerr):
		return http.StatusBadRequest, cerr.Reason
	case errors.Is(err, domain.ErrNoSymptomData):
		return http.StatusBadRequest, "评估缺少症状数据"
	case errors.Is(err, domain.ErrInvalidComparison):
		return http.StatusBadRequest, "对比参数无效"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "记录不存在"
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return http.StatusConflict, "当前状态不允许该操作"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	requestID := c.GetString(middleware.CorrelationIDKey)

	entry := s.logger.WithFields(logrus.Fields{
		"correlation_id": requestID,
		"path":           c.FullPath(),
		"status":         status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Envelope{
		Code:    status,
		Message: message,
		Error:   &ErrorInfo{Code: domain.CodeForError(err), RequestID: requestID},
	})
}

func (s *Server) respondBadRequest(c *gin.Context, message string) {
	s.respondError(c, domain.NewValidationError("", message, nil))
}
