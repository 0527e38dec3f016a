package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
)

// 拒绝类结果：前端刷新后可自行重试
var badRequestErrors = []error{
	service.ErrAlreadyInRoom,
	service.ErrRoomFull,
	service.ErrNotInRoom,
	service.ErrRoomClosed,
	service.ErrInvalidParticipants,
	service.ErrInvalidRoomParams,
	service.ErrInvalidStartTime,
	service.ErrRobotUnavailable,
}

func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrStoreNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case isBadRequest(err):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrWeChatUnavailable):
		ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

func isBadRequest(err error) bool {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
