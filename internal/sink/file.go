package sink

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"larkexport/internal/models"
	"larkexport/internal/service"
)

const sheetName = "Messages"

func headerRow() []interface{} {
	return []interface{}{"Thời gian", "Người gửi", "Nội dung"}
}

// ExcelSink serializes export rows into an in-memory xlsx workbook.
// Nothing is written to disk.
type ExcelSink struct{}

func NewExcelSink() *ExcelSink {
	return &ExcelSink{}
}

var _ service.FileSink = (*ExcelSink)(nil)

func (s *ExcelSink) Write(rows []models.ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name worksheet: %w", err)
	}
	header := headerRow()
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{row.Time, row.Sender, row.Text}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
