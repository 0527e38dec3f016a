package domain

import "time"

// RoomStatus 牌桌状态，数值与历史数据保持一致。
type RoomStatus int

const (
	RoomStatusOpen      RoomStatus = 0 // 招募中，可加入
	RoomStatusStarted   RoomStatus = 1 // 已开局
	RoomStatusCancelled RoomStatus = 2 // 已取消
	RoomStatusExpired   RoomStatus = 3 // 已结束/过期（终态，成员全部释放）
)

// RoomMaxAge 房间从创建起的最长存活时间，超过即被过期清扫回收。
const RoomMaxAge = 2 * time.Hour

// Room 表示一个麻将牌桌 (表名沿用 table_list)。
type Room struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	HostID       int64      `gorm:"column:host_id;not null" json:"host_id"`
	StoreID      int64      `gorm:"column:store_id;index;not null" json:"store_id"`
	Participants string     `gorm:"column:participants;type:text" json:"-"` // JSON 数组文本，见 EncodeParticipants
	ReqNum       int        `gorm:"column:req_num;not null;default:4" json:"req_num"`
	Status       RoomStatus `gorm:"column:status;index;not null;default:0" json:"status"`
	StartTime    time.Time  `gorm:"column:start_time;index;not null" json:"start_time"`
	GameType     string     `gorm:"column:game_type;size:32" json:"game_type"`
	Remark       string     `gorm:"column:remark;size:255" json:"remark"`
	IsRobotRoom  bool       `gorm:"column:is_robot_room;index;not null;default:false" json:"is_robot_room"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"` // 机器人调度用作"最近加入时间"
}

// TableName 指定 gorm 表名。
func (Room) TableName() string { return "table_list" }

// ParticipantIDs 解码成员列表。
func (r Room) ParticipantIDs() []int64 {
	return DecodeParticipants(r.Participants)
}

// SetParticipantIDs 编码并写回成员列表。
func (r *Room) SetParticipantIDs(ids []int64) {
	r.Participants = EncodeParticipants(ids)
}

// IsStale 判断房间是否应被过期清扫：开始时间已过，或创建时间超过 RoomMaxAge。
func (r Room) IsStale(now time.Time) bool {
	return !r.StartTime.After(now) || now.Sub(r.CreatedAt) > RoomMaxAge
}

// RoomEventType 房间变更事件类型
type RoomEventType string

const (
	RoomEventCreated RoomEventType = "created"
	RoomEventJoined  RoomEventType = "joined"
	RoomEventLeft    RoomEventType = "left"
	RoomEventExpired RoomEventType = "expired"
)

// RoomEvent 在房间变更提交后广播给牌桌列表的订阅者。
type RoomEvent struct {
	Type         RoomEventType `json:"type"`
	RoomID       int64         `json:"room_id"`
	Status       RoomStatus    `json:"status"`
	HostID       int64         `json:"host_id"`
	ReqNum       int           `json:"req_num"`
	Participants []int64       `json:"participants"`
	At           time.Time     `json:"at"`
}
