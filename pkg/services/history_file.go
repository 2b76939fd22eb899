package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// 受け付ける日付フォーマット
var historyDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"02/01/2006",
	"20060102",
}

var (
	dateHeaders     = []string{"date", "日付", "timestamp", "jour"}
	productHeaders  = []string{"product_id", "product", "productid", "商品id", "商品コード", "produit", "id_produit"}
	quantityHeaders = []string{"quantity", "qty", "sales", "数量", "販売数", "quantite", "quantité", "ventes"}
	priceHeaders    = []string{"unit_price", "price", "prix", "単価", "prix_unitaire"}
)

// FileHistorySource loads sales history from a CSV or XLSX file.
// Columns are matched by header name: date, product_id, quantity and an optional unit_price.
type FileHistorySource struct {
	*MemoryHistorySource
	path  string
	sheet string
}

// NewFileHistorySource 履歴ファイルを読み込んでソースを作成
func NewFileHistorySource(path, sheet string) (*FileHistorySource, error) {
	s := &FileHistorySource{
		MemoryHistorySource: NewMemoryHistorySource(),
		path:                path,
		sheet:               sheet,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file and swaps the whole store.
func (s *FileHistorySource) Reload() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var observations []models.HistoricalObservation
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".xlsx":
		observations, err = ParseHistoryXLSX(f, s.sheet)
	case ".csv":
		observations, err = ParseHistoryCSV(f)
	default:
		return fmt.Errorf("unsupported history file %q: use .csv or .xlsx", s.path)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.Replace(observations...)
	return nil
}

// ParseHistoryCSV parses CSV rows into observations.
func ParseHistoryCSV(r io.Reader) ([]models.HistoricalObservation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return parseHistoryRows(rows)
}

// ParseHistoryCSVBytes CSVバイト列から履歴を読み込む
func ParseHistoryCSVBytes(data []byte) ([]models.HistoricalObservation, error) {
	return ParseHistoryCSV(bytes.NewReader(data))
}

// ParseHistoryXLSX reads the named sheet, or the first sheet when empty.
func ParseHistoryXLSX(r io.Reader, sheet string) ([]models.HistoricalObservation, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return parseHistoryRows(rows)
}

var historyFileHeader = []string{"date", "product_id", "quantity", "unit_price"}

// WriteHistoryFile writes observations in the layout NewFileHistorySource reads back.
// The format follows the extension of path.
func WriteHistoryFile(path, sheet string, observations []models.HistoricalObservation) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create history file: %w", err)
		}
		if err := WriteHistoryCSV(f, observations); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case ".xlsx":
		return writeHistoryXLSX(path, sheet, observations)
	default:
		return fmt.Errorf("unsupported history file %q: use .csv or .xlsx", path)
	}
}

// WriteHistoryCSV CSV形式で履歴を書き出す
func WriteHistoryCSV(w io.Writer, observations []models.HistoricalObservation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyFileHeader); err != nil {
		return err
	}
	for _, o := range observations {
		if err := cw.Write(historyRecord(o)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeHistoryXLSX(path, sheet string, observations []models.HistoricalObservation) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Ventes"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]string, 0, len(observations)+1)
	rows = append(rows, historyFileHeader)
	for _, o := range observations {
		rows = append(rows, historyRecord(o))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func historyRecord(o models.HistoricalObservation) []string {
	return []string{
		o.Timestamp.UTC().Format("2006-01-02"),
		o.ProductID,
		strconv.FormatFloat(o.Quantity, 'f', -1, 64),
		strconv.FormatFloat(o.UnitPrice, 'f', -1, 64),
	}
}

func parseHistoryRows(rows [][]string) ([]models.HistoricalObservation, error) {
	if len(rows) == 0 {
		return nil, errors.New("history: no data")
	}

	header := normalizeHeader(rows[0])
	dateIdx := findIndex(header, dateHeaders...)
	productIdx := findIndex(header, productHeaders...)
	qtyIdx := findIndex(header, quantityHeaders...)
	priceIdx := findIndex(header, priceHeaders...)
	if dateIdx == -1 || productIdx == -1 || qtyIdx == -1 {
		return nil, errors.New("history: date, product_id and quantity columns are required")
	}

	var out []models.HistoricalObservation
	for _, row := range rows[1:] {
		if len(row) <= dateIdx || len(row) <= productIdx || len(row) <= qtyIdx {
			continue
		}
		productID := strings.TrimSpace(row[productIdx])
		if productID == "" {
			continue
		}
		ts, ok := parseAnyDate(row[dateIdx], historyDateLayouts)
		if !ok {
			continue
		}
		qty, ok := parseNumber(row[qtyIdx])
		if !ok || qty < 0 {
			continue
		}
		price := 0.0
		if priceIdx != -1 && len(row) > priceIdx {
			price, _ = parseNumber(row[priceIdx])
		}
		out = append(out, models.HistoricalObservation{
			ProductID: productID,
			Quantity:  qty,
			Timestamp: ts,
			UnitPrice: price,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("history: no valid rows")
	}
	return out, nil
}

func parseNumber(s string) (float64, bool) {
	// "1 250,50 €" のような表記も許容する
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma != -1 && dot != -1:
		// 両方あれば後ろの記号が小数点
		if comma > dot {
			s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
	case comma != -1 && strings.Count(s, ",") == 1 && len(s)-comma-1 != 3:
		s = strings.Replace(s, ",", ".", 1)
	}
	s = filterNumeric(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseAnyDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	// 時刻付きの場合は日付部分のみ
	if i := strings.IndexAny(s, " T"); i > 0 {
		part := s[:i]
		for _, layout := range layouts {
			if t, err := time.Parse(layout, part); err == nil {
				return day(t), true
			}
		}
	}
	return time.Time{}, false
}

func normalizeHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, v := range hdr {
		v = strings.TrimPrefix(v, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func findIndex(hdr []string, candidates ...string) int {
	for i, v := range hdr {
		for _, c := range candidates {
			if v == c {
				return i
			}
		}
	}
	return -1
}

func day(t time.Time) time.Time { return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC) }

// filterNumeric keeps digits, dot, and minus.
func filterNumeric(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b = append(b, r)
		}
	}
	return string(b)
}
