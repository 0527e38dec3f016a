package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
)

// RoomExportHeader 牌桌导出表头
var RoomExportHeader = []string{
	"ID", "Store", "Host", "Participants", "Capacity",
	"Status", "Start Time", "Robot Room", "Created At",
}

const roomExportSheet = "Tables"

// ExportService 后台报表导出
type ExportService struct {
	uow repository.UnitOfWork
	now func() time.Time
}

func NewExportService(uow repository.UnitOfWork) *ExportService {
	if uow == nil {
		panic("UnitOfWork cannot be nil for ExportService")
	}
	return &ExportService{uow: uow, now: time.Now}
}

// ExportRooms 导出最近 days 天创建的牌桌为 xlsx
func (s *ExportService) ExportRooms(ctx context.Context, days int) ([]byte, error) {
	if days <= 0 {
		days = 7
	}
	since := s.now().AddDate(0, 0, -days)
	logCtx := logrus.WithFields(logrus.Fields{"days": days, "since": since})

	var (
		rooms  []domain.Room
		stores map[int64]domain.Store
	)
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		var err error
		rooms, err = r.Rooms.ListCreatedSince(ctx, since)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(rooms))
		for _, room := range rooms {
			ids = append(ids, room.StoreID)
		}
		list, err := r.Stores.FindByIDs(ctx, domain.DedupeParticipants(ids))
		if err != nil {
			return err
		}
		stores = make(map[int64]domain.Store, len(list))
		for _, st := range list {
			stores[st.ID] = st
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Error("ExportRooms: failed to load rooms")
		return nil, ErrInternalServer
	}

	data, err := buildRoomWorkbook(rooms, stores)
	if err != nil {
		logCtx.WithError(err).Error("ExportRooms: failed to build workbook")
		return nil, ErrInternalServer
	}
	logCtx.WithField("rows", len(rooms)).Info("Rooms exported")
	return data, nil
}

func statusLabel(st domain.RoomStatus) string {
	switch st {
	case domain.RoomStatusOpen:
		return "Open"
	case domain.RoomStatusStarted:
		return "Started"
	case domain.RoomStatusCancelled:
		return "Cancelled"
	case domain.RoomStatusExpired:
		return "Expired"
	default:
		return strconv.Itoa(int(st))
	}
}

func buildRoomWorkbook(rooms []domain.Room, stores map[int64]domain.Store) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(roomExportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(RoomExportHeader))
	for i, h := range RoomExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(roomExportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(RoomExportHeader))
	if err := f.SetCellStyle(roomExportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(roomExportSheet, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, room := range rooms {
		ids := room.ParticipantIDs()
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		robot := "No"
		if room.IsRobotRoom {
			robot = "Yes"
		}
		row := []interface{}{
			room.ID,
			stores[room.StoreID].Name,
			room.HostID,
			strings.Join(parts, ","),
			fmt.Sprintf("%d/%d", len(ids), room.ReqNum),
			statusLabel(room.Status),
			room.StartTime.Format("2006-01-02 15:04"),
			robot,
			room.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(roomExportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(roomExportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
