package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrStoreNotFound        = errors.New("store not found")
	ErrAlreadyInRoom        = errors.New("user is already in a room")
	ErrRoomFull             = errors.New("room is full")
	ErrNotInRoom            = errors.New("user is not in this room")
	ErrRoomClosed           = errors.New("room is no longer open")
	ErrInvalidParticipants  = errors.New("invalid participants")
	ErrInvalidRoomParams    = errors.New("invalid room parameters")
	ErrInvalidStartTime     = errors.New("start time must be in the future")
	ErrRobotUnavailable     = errors.New("robot is not available")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrWeChatUnavailable    = errors.New("wechat service unavailable")
	ErrInternalServer       = errors.New("internal server error")
)

// ReasonError 将拒绝原因映射为服务层错误
func ReasonError(reason Reason) error {
	switch reason {
	case ReasonNone:
		return nil
	case ReasonRoomNotFound, ReasonTableNotFound:
		return ErrRoomNotFound
	case ReasonAlreadyInRoom:
		return ErrAlreadyInRoom
	case ReasonRoomFull:
		return ErrRoomFull
	case ReasonNotInRoom:
		return ErrNotInRoom
	case ReasonRoomClosed:
		return ErrRoomClosed
	default:
		return ErrInternalServer
	}
}

// businessErrors 在事务回调中直接返回、无需再映射的业务错误
var businessErrors = []error{
	ErrUserNotFound, ErrRoomNotFound, ErrStoreNotFound,
	ErrAlreadyInRoom, ErrRoomFull, ErrNotInRoom, ErrRoomClosed,
	ErrInvalidParticipants, ErrInvalidRoomParams, ErrInvalidStartTime,
	ErrRobotUnavailable,
}

// mapRepoError 将事务返回的错误映射到服务层定义的错误。
// 业务错误原样返回，其余 (数据库、连接、取消) 统一视为内部错误。
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var decline *DeclineError
	if errors.As(err, &decline) {
		return ReasonError(decline.Reason)
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return ErrInternalServer
}
