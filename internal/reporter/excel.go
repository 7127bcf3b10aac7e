package reporter

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"scenescape-counter/internal/aggregator"
)

// SummarySheet 峰值汇总工作表名称
const SummarySheet = "Peak Occupancy"

// SummaryHeader 场景表头
var SummaryHeader = []interface{}{"Scene ID", "Scene Name", "Peak", "Current"}

// WriteSummaryWorkbook 将峰值汇总写入 Excel 文件
// 布局：表头、每个场景一行、合计行、空行、元数据
func WriteSummaryWorkbook(path string, snap aggregator.Snapshot, category string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SummarySheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	row := 1
	if err := setRow(f, row, SummaryHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for _, sc := range snap.Scenes {
		row++
		if err := setRow(f, row, []interface{}{sc.SceneID, sc.Name, sc.Peak, sc.Current}); err != nil {
			return err
		}
	}

	row++
	if err := setRow(f, row, []interface{}{"", "All scenes", snap.GlobalPeak, snap.GlobalCurrent}); err != nil {
		return err
	}

	lastUpdate := ""
	if !snap.LastUpdate.IsZero() {
		lastUpdate = snap.LastUpdate.Format(time.RFC3339)
	}
	row += 2
	for _, meta := range [][]interface{}{
		{"Target Category", category},
		{"Messages Processed", snap.MessageCount},
		{"Last Update", lastUpdate},
	} {
		if err := setRow(f, row, meta); err != nil {
			return err
		}
		row++
	}

	if err := f.SetColWidth(SummarySheet, "A", "B", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
