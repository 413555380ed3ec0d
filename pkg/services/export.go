package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"agriviewer-chat-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// exportSheetName はExcel出力のシート名
const exportSheetName = "metrics"

// WriteCSV はテーブルをヘッダー付きCSVで書き出します。
func WriteCSV(w io.Writer, table models.MetricSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗: %w", err)
	}
	valueColumns := table.ValueColumns()
	for _, row := range table.Rows {
		record := make([]string, 0, len(valueColumns)+1)
		record = append(record, row.Date.Format(models.DateLayout))
		for _, col := range valueColumns {
			record = append(record, strconv.FormatFloat(row.Values[col], 'f', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("CSV行の書き込みに失敗: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX はテーブルを1シートのExcelファイルで書き出します。
func WriteXLSX(w io.Writer, table models.MetricSeries) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheetName); err != nil {
		return fmt.Errorf("シート名の設定に失敗: %w", err)
	}

	header := make([]interface{}, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return fmt.Errorf("ヘッダー行の書き込みに失敗: %w", err)
	}

	valueColumns := table.ValueColumns()
	for i, row := range table.Rows {
		cells := make([]interface{}, 0, len(valueColumns)+1)
		cells = append(cells, row.Date.Format(models.DateLayout))
		for _, col := range valueColumns {
			cells = append(cells, row.Values[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheetName, cell, &cells); err != nil {
			return fmt.Errorf("データ行の書き込みに失敗: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("Excelファイルの書き出しに失敗: %w", err)
	}
	return nil
}
