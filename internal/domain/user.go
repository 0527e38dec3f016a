// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// UserStatus 用户是否在某个牌桌中
type UserStatus int

const (
	UserStatusIdle   UserStatus = 0
	UserStatusInRoom UserStatus = 1
)

// User 表示小程序用户。真实用户 ID 为正数，机器人为预先分配的负数。
type User struct {
	UserID      int64      `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	OpenID      *string    `gorm:"column:open_id;type:varchar(64);uniqueIndex" json:"-"` // 机器人没有 open_id
	Nickname    string     `gorm:"column:nickname;size:64" json:"nickname"`
	AvatarURL   string     `gorm:"column:avatar_url;size:512" json:"avatar_url"`
	Status      UserStatus `gorm:"column:status;not null;default:0" json:"status"`
	EnterRoomID *int64     `gorm:"column:enter_room_id;index" json:"enter_room_id"` // 与 Status 同步维护
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// InRoom 返回用户当前所在房间 ID；不在任何房间时 ok 为 false。
func (u User) InRoom() (roomID int64, ok bool) {
	if u.Status != UserStatusInRoom || u.EnterRoomID == nil {
		return 0, false
	}
	return *u.EnterRoomID, true
}

// RobotStatus 机器人池中的占用状态
type RobotStatus int

const (
	RobotStatusIdle RobotStatus = 0
	RobotStatusBusy RobotStatus = 1
)

// RobotUser 机器人池成员。UserID 为负数，并在 users 表中有同 ID 的资料行。
type RobotUser struct {
	UserID    int64       `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Status    RobotStatus `gorm:"column:status;index;not null;default:0"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (RobotUser) TableName() string { return "robot_pool" }

// Store 门店 (只读参考数据)
type Store struct {
	ID      int64  `gorm:"column:id;primaryKey" json:"id"`
	Name    string `gorm:"column:name;size:128" json:"name"`
	Address string `gorm:"column:address;size:255" json:"address"`
	Status  int    `gorm:"column:status;not null;default:1" json:"-"` // 1 = 营业中
}

func (Store) TableName() string { return "stores" }

// StoreStatusActive 营业中
const StoreStatusActive = 1

// Admin 后台管理员账号
type Admin struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Username  string    `gorm:"column:username;type:varchar(191);uniqueIndex;not null"`
	Password  string    `gorm:"column:password;type:varchar(255);not null"` // bcrypt 哈希
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Admin) TableName() string { return "admins" }
