package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

// MigrateDB 迁移所有表结构。返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	// 检查 db 是否为 nil
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// 逐个迁移，出错时带上模型类型
	models := []interface{}{
		&domain.User{},
		&domain.Room{},
		&domain.Store{},
		&domain.RobotUser{},
		&domain.Admin{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			logrus.Errorf("Failed to auto-migrate %T: %v", m, err)
			return fmt.Errorf("failed to auto-migrate %T: %w", m, err)
		}
	}

	// 列表查询按 (status, created_at) 过滤排序
	if !db.Migrator().HasIndex(&domain.Room{}, "idx_table_list_status_created") {
		if err := db.Exec("CREATE INDEX idx_table_list_status_created ON table_list (status, created_at)").Error; err != nil {
			// 索引创建失败只记录警告
			logrus.Warnf("Could not create composite index on table_list: %v", err)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil // 迁移成功
}
