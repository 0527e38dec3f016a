package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	gormpersistence "github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/persistence/gorm"
)

var userColumns = []string{"user_id", "open_id", "nickname", "avatar_url", "status", "enter_room_id", "created_at", "updated_at"}

// newMySQLRoomService 用 sqlmock 驱动 gorm 事务，校验实际发出的加锁语句
func newMySQLRoomService(t *testing.T) (*RoomService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	svc := NewRoomService(gormpersistence.NewUnitOfWork(db), NewRoomEngine(), nil, nil).WithClock(fixedClock(testNow))
	return svc, mock
}

func TestRoomService_EnterRoom_LocksUserRow(t *testing.T) {
	svc, mock := newMySQLRoomService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE user_id = \\? .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectRollback()

	_, err := svc.EnterRoom(context.Background(), 42, 8, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomService_EnterRoom_LocksPointerRoomAfterUser(t *testing.T) {
	svc, mock := newMySQLRoomService(t)
	stale := int64(12)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE user_id = \\? .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(5, nil, "u", "", 1, 3, testNow, testNow))
	// 锁的是用户行上的房间 3，而不是客户端传来的 12
	mock.ExpectQuery("SELECT \\* FROM `table_list` WHERE `table_list`.`id` = \\? .*FOR UPDATE").
		WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	_, err := svc.EnterRoom(context.Background(), 5, 8, &stale)
	assert.ErrorIs(t, err, ErrInternalServer)
	require.NoError(t, mock.ExpectationsWereMet())
}
