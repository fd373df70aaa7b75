package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRecords    = errors.New("该时间段内没有班次记录")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出人员在日期范围内的全部班次（已叠加更正）为 Excel (.xlsx)
//   - 以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	ExportHistory(ctx context.Context, handle, from, to string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo           *repository.Repository
	identity       IdentityService
	maxHistoryDays int
	logger         *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, identity IdentityService, maxHistoryDays int, logger *zap.Logger) ExportService {
	if maxHistoryDays <= 0 {
		maxHistoryDays = 366
	}
	return &exportService{repo: repo, identity: identity, maxHistoryDays: maxHistoryDays, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportHistory：导出班次历史
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "考勤记录"
//   - 第 1 行：标题（姓名 + 日期范围）
//   - 第 2 行：表头
//   - 之后每行一个班次，按日期、班次序号排序
//   - 末行：工时与加班合计

var historyHeaders = []string{
	"日期", "班次", "状态", "签到时间", "签退时间", "迟到(分)", "早退(分)",
	"休息(分)", "实际工时(分)", "加班(分)", "补录", "已更正", "备注",
}

func (s *exportService) ExportHistory(ctx context.Context, handle, from, to string) (*bytes.Buffer, string, error) {
	fromDate, toDate, err := parseDateRange(from, to, s.maxHistoryDays)
	if err != nil {
		return nil, "", err
	}
	person, err := s.identity.Lookup(ctx, handle)
	if err != nil {
		return nil, "", err
	}

	records, _, err := s.repo.Shift.ListByPersonAndRange(ctx, person.PersonID, fromDate, toDate, 0, 0)
	if err != nil {
		s.logger.Error("查询班次历史失败", zap.String("person_id", person.PersonID), zap.Error(err))
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRecords
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "考勤记录"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "C", 12)
	f.SetColWidth(sheetName, "D", "E", 20)
	f.SetColWidth(sheetName, "F", "L", 12)
	f.SetColWidth(sheetName, "M", "M", 30)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s 考勤记录 %s ~ %s", person.Name, from, to))
	f.MergeCell(sheetName, "A1", cell(colName(len(historyHeaders)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	for i, h := range historyHeaders {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", cell(colName(len(historyHeaders)-1), 2), headerStyle)

	// 数据行
	loc := person.Location()
	row := 3
	totalWork, totalOvertime := 0, 0
	for i := range records {
		view := records[i].Effective()
		values := []interface{}{
			view.ShiftDate.Format(dateLayout),
			view.ShiftNumber,
			stateLabel(view.CurrentState),
			formatLocal(view.CheckIn.At, loc),
			formatLocal(view.CheckOut.At, loc),
			view.LateMinutes,
			view.EarlyOutMinutes,
			view.BreakMinutes,
			view.ActualWorkMinutes,
			view.OvertimeMinutes,
			yesNo(view.ManualEntry),
			yesNo(len(records[i].Edits) > 0),
			view.Notes,
		}
		for col, v := range values {
			f.SetCellValue(sheetName, cell(colName(col), row), v)
		}
		totalWork += view.ActualWorkMinutes
		totalOvertime += view.OvertimeMinutes
		row++
	}

	// 合计行
	f.SetCellValue(sheetName, cell("A", row), "合计")
	f.SetCellValue(sheetName, cell(colName(8), row), totalWork)
	f.SetCellValue(sheetName, cell(colName(9), row), totalOvertime)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("考勤记录_%s_%s_%s.xlsx", person.Handle, from, to)
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func formatLocal(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func stateLabel(state string) string {
	switch state {
	case model.ShiftStateCheckedIn:
		return "已签到"
	case model.ShiftStateOnBreak:
		return "休息中"
	case model.ShiftStateCheckedOut:
		return "已签退"
	}
	return state
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
