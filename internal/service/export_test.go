package service

import (
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
)

func TestExportRooms(t *testing.T) {
	s := newTestStore()
	s.PutStore(domain.Store{ID: 1, Name: "东风麻将馆", Status: domain.StoreStatusActive})
	recent := seedRoom(s, 5, []int64{5, -1}, 4)
	old := seedRoom(s, 6, []int64{6}, 4)
	room := mustRoom(t, s, old)
	room.CreatedAt = testNow.AddDate(0, 0, -30)
	s.PutRoom(room)

	svc := NewExportService(s)
	svc.now = fixedClock(testNow)

	data, err := svc.ExportRooms(context.Background(), 0)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Tables")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one recent room")
	assert.Equal(t, RoomExportHeader, rows[0])

	row := rows[1]
	assert.Equal(t, strconv.FormatInt(recent, 10), row[0])
	assert.Equal(t, "东风麻将馆", row[1])
	assert.Equal(t, "5", row[2])
	assert.Equal(t, "5,-1", row[3])
	assert.Equal(t, "2/4", row[4])
	assert.Equal(t, "Open", row[5])
	assert.Equal(t, testNow.Add(2*time.Hour).Format("2006-01-02 15:04"), row[6])
}

func TestExportRooms_Empty(t *testing.T) {
	svc := NewExportService(newTestStore())
	data, err := svc.ExportRooms(context.Background(), 3)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Tables")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
