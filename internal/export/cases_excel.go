package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"wisefido-wellness/internal/models"
	"wisefido-wellness/internal/repository"

	"github.com/xuri/excelize/v2"
)

// CasesExportHeader 案例导出表头
var CasesExportHeader = []string{
	"Case ID",
	"User ID",
	"Event Kind",
	"Urgency",
	"Description",
	"At Home",
	"Opened At",
	"Resolution",
	"Resolved At",
	"Contacts Notified",
	"Partial Failure",
}

const casesSheetName = "Escalation Cases"

// GenerateCasesExport 生成归档案例导出 Excel 文件
// cases: 归档案例列表，如果为空则只生成表头
func GenerateCasesExport(cases []*repository.ArchivedCase) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	index, err := f.NewSheet(casesSheetName)
	if err != nil {
		f.Close() // Close on error
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range CasesExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(casesSheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(casesSheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 设置列宽
	columnWidths := []float64{
		38, // Case ID
		20, // User ID
		20, // Event Kind
		10, // Urgency
		35, // Description
		10, // At Home
		20, // Opened At
		18, // Resolution
		20, // Resolved At
		45, // Contacts Notified
		14, // Partial Failure
	}
	for i := range CasesExportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(columnWidths) && columnWidths[i] > 0 {
			if err := f.SetColWidth(casesSheetName, col, col, columnWidths[i]); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	// 写入数据
	for rowIdx, archived := range cases {
		row := rowIdx + 2 // 从第2行开始（第1行是表头）
		values := []interface{}{
			archived.CaseID,
			archived.UserID,
			archived.EventKind,
			models.Urgency(archived.Urgency).String(),
			archived.Description,
			yesNo(archived.IsHome),
			formatTime(archived.OpenedAt),
			archived.Resolution,
			formatTimePtr(archived.ResolvedAt),
			formatDeliveries(archived.Deliveries),
			yesNo(archived.PartialFailure),
		}
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(casesSheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(casesSheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// formatDeliveries 把联系人送达记录拼成单元格文本
// 形如 "Alice (+15550001): sent; Bob (+15550002): failed (gateway timeout)"
func formatDeliveries(deliveries []models.ContactDelivery) string {
	if len(deliveries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		entry := fmt.Sprintf("%s (%s): %s", d.Contact.Name, d.Contact.Phone, d.Status)
		if d.Reason != "" {
			entry += fmt.Sprintf(" (%s)", d.Reason)
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "; ")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
