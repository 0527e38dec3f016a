package tasks

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 定义任务类型常量
const (
	TypeRobotTick     = "robot:tick"       // 周期性机器人调度
	TypeRobotWithdraw = "robot:withdraw"   // 延迟撤出单个机器人
	TypeRoomFull      = "room:full_notify" // 房间满员推送
)

// 队列名称，与 worker 的队列权重对应
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// RobotWithdrawPayload 机器人撤出任务的数据
type RobotWithdrawPayload struct {
	RoomID  int64 `json:"room_id"`
	RobotID int64 `json:"robot_id"`
}

// RoomFullPayload 满员通知任务的数据
type RoomFullPayload struct {
	RoomID int64 `json:"room_id"`
}

// NewRobotTickTask 周期任务没有负载
func NewRobotTickTask() ([]byte, error) {
	return nil, nil
}

// NewRobotWithdrawTask 序列化撤出任务
func NewRobotWithdrawTask(roomID, robotID int64) ([]byte, error) {
	return json.Marshal(RobotWithdrawPayload{RoomID: roomID, RobotID: robotID})
}

// NewRoomFullTask 序列化满员通知任务
func NewRoomFullTask(roomID int64) ([]byte, error) {
	return json.Marshal(RoomFullPayload{RoomID: roomID})
}

// ParseRobotWithdrawPayload 反序列化撤出任务
func ParseRobotWithdrawPayload(b []byte) (RobotWithdrawPayload, error) {
	var p RobotWithdrawPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", TypeRobotWithdraw, err)
	}
	if p.RoomID <= 0 || p.RobotID >= 0 {
		return p, fmt.Errorf("invalid %s payload: room=%d robot=%d", TypeRobotWithdraw, p.RoomID, p.RobotID)
	}
	return p, nil
}

// ParseRoomFullPayload 反序列化满员通知任务
func ParseRoomFullPayload(b []byte) (RoomFullPayload, error) {
	var p RoomFullPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", TypeRoomFull, err)
	}
	if p.RoomID <= 0 {
		return p, fmt.Errorf("invalid %s payload: room=%d", TypeRoomFull, p.RoomID)
	}
	return p, nil
}

// WithdrawTaskID 同一机器人在同一房间的撤出任务只排队一次
func WithdrawTaskID(roomID, robotID int64) string {
	return fmt.Sprintf("robot-withdraw:%d:%d", roomID, robotID)
}

// RoomFullTaskID 同一房间的满员通知只排队一次
func RoomFullTaskID(roomID int64) string {
	return fmt.Sprintf("room-full:%d", roomID)
}
