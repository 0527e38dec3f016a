package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/middleware"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
)

// RoomHandler 封装了与牌桌相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// startTimeLayouts 客户端可能发送的时间格式，无时区的按服务器本地时区解析
var startTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

func parseStartTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// viewerID 可选认证下的调用者
func viewerID(c *gin.Context) *int64 {
	if id, ok := middleware.UserID(c); ok {
		return &id
	}
	return nil
}

// mustUserID 取认证用户 ID，Auth 中间件缺失时返回 401
func mustUserID(c *gin.Context) (int64, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		logrus.WithField("path", c.FullPath()).Warn("Handler: User ID not found in context")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return 0, false
	}
	return id, true
}

// GetTableList 清扫过期房间并返回可加入的牌桌列表
func (h *RoomHandler) GetTableList(c *gin.Context) {
	tables, err := h.roomService.ListTables(c.Request.Context(), viewerID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"list": tables, "total": len(tables)})
}

// GetTableDetail 返回单个牌桌详情
func (h *RoomHandler) GetTableDetail(c *gin.Context) {
	tableID, err := strconv.ParseInt(c.Query("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: tableId is required")
		return
	}
	view, err := h.roomService.GetTableDetail(c.Request.Context(), tableID, viewerID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

// EnterRoomRequest 进入或切换房间
type EnterRoomRequest struct {
	TableID        int64  `json:"tableId" binding:"required,gt=0"`
	CurrentTableID *int64 `json:"currentTableId"`
}

// EnterRoom 处理进入房间请求，携带 currentTableId 时先离开原房间
func (h *RoomHandler) EnterRoom(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req EnterRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.EnterRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: tableId is required")
		return
	}
	if req.CurrentTableID != nil && *req.CurrentTableID <= 0 {
		req.CurrentTableID = nil
	}

	res, err := h.roomService.EnterRoom(c.Request.Context(), userID, req.TableID, req.CurrentTableID)
	if err != nil {
		logCtx.WithError(err).WithField("table_id", req.TableID).Info("Handler.EnterRoom: declined")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, res)
}

// ExitRoomRequest 退出房间
type ExitRoomRequest struct {
	TableID int64 `json:"tableId" binding:"required,gt=0"`
}

// ExitRoom 处理退出房间请求
func (h *RoomHandler) ExitRoom(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req ExitRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.ExitRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: tableId is required")
		return
	}

	res, err := h.roomService.ExitRoom(c.Request.Context(), userID, req.TableID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, res)
}

// CreateRoomRequest 用户建房。host_id 可省略，默认为当前用户。
type CreateRoomRequest struct {
	HostID    int64  `json:"host_id"`
	StoreID   int64  `json:"store_id" binding:"required,gt=0"`
	StartTime string `json:"start_time" binding:"required"`
	ReqNum    int    `json:"req_num"`
	GameType  string `json:"game_type" binding:"max=32"`
	Remark    string `json:"remark" binding:"max=255"`
}

// CreateRoom 处理用户建房请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: store_id and start_time are required")
		return
	}
	if req.HostID != 0 && req.HostID != userID {
		ErrorResponse(c, http.StatusForbidden, "host_id must be the current user")
		return
	}
	startTime, ok := parseStartTime(req.StartTime)
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "Invalid start_time format")
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		HostID:    userID,
		StoreID:   req.StoreID,
		StartTime: startTime,
		ReqNum:    req.ReqNum,
		GameType:  req.GameType,
		Remark:    req.Remark,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logCtx.WithField("room_id", room.ID).Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusOK, gin.H{"table_id": room.ID})
}

// AdminCreateRoomRequest 后台建房，participants 第一个为房主，负数为机器人
type AdminCreateRoomRequest struct {
	Participants []int64 `json:"participants" binding:"required,min=1"`
	StoreID      int64   `json:"store_id" binding:"required,gt=0"`
	StartTime    string  `json:"start_time" binding:"required"`
	ReqNum       int     `json:"req_num"`
	GameType     string  `json:"game_type" binding:"max=32"`
	Remark       string  `json:"remark" binding:"max=255"`
}

// AdminCreateRoom 处理后台建房请求
func (h *RoomHandler) AdminCreateRoom(c *gin.Context) {
	var req AdminCreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.AdminCreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: participants, store_id and start_time are required")
		return
	}
	startTime, ok := parseStartTime(req.StartTime)
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "Invalid start_time format")
		return
	}

	room, err := h.roomService.AdminCreateRoom(c.Request.Context(), service.AdminCreateRoomInput{
		Participants: req.Participants,
		StoreID:      req.StoreID,
		StartTime:    startTime,
		ReqNum:       req.ReqNum,
		GameType:     req.GameType,
		Remark:       req.Remark,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"table_id":     room.ID,
		"participants": room.ParticipantIDs(),
	})
}
