package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"vigil/internal/logger"
	"vigil/internal/signal"
)

// 历史数据集 CSV 的必需列；指标列允许缺省。
var requiredColumns = []string{"stock", "date", "close", "volume"}

// LoadCSV 读取历史数据集（每行一个 symbol+date），按 symbol 分组、日期升序。
// 列名大小写不敏感；无法解析的行跳过并告警，不中断整个文件。
func LoadCSV(path string) (map[string][]DayRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset failed: %w", err)
	}
	defer f.Close()
	return parseCSV(f, path)
}

func parseCSV(r io.Reader, name string) (map[string][]DayRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading dataset header failed (%s): %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := cols[col]; !ok {
			return nil, fmt.Errorf("dataset %s missing required column %q", name, col)
		}
	}

	out := make(map[string][]DayRecord)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warnf("ingest: skipping malformed row %d in %s: %v", line, name, err)
			continue
		}
		rec, err := rowToRecord(row, cols)
		if err != nil {
			logger.Warnf("ingest: skipping row %d in %s: %v", line, name, err)
			continue
		}
		out[rec.Symbol] = append(out[rec.Symbol], rec)
	}

	for sym := range out {
		records := out[sym]
		sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
		out[sym] = records
	}
	return out, nil
}

func rowToRecord(row []string, cols map[string]int) (DayRecord, error) {
	get := func(name string) (string, bool) {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[idx]), true
	}
	symbol, _ := get("stock")
	if symbol == "" {
		return DayRecord{}, fmt.Errorf("empty symbol")
	}
	dateStr, _ := get("date")
	date, err := parseDate(dateStr)
	if err != nil {
		return DayRecord{}, err
	}
	rec := DayRecord{Symbol: strings.ToUpper(symbol), Date: signal.Day(date)}

	if v, ok := getFloat(get, "close"); ok {
		rec.Close = v
		rec.HasPrice = true
	}
	if v, ok := getFloat(get, "open"); ok {
		rec.Open = v
	}
	if v, ok := getFloat(get, "high"); ok {
		rec.High = v
	}
	if v, ok := getFloat(get, "low"); ok {
		rec.Low = v
	}
	if v, ok := getFloat(get, "volume"); ok {
		rec.Volume = v
		rec.HasVolume = true
	}
	if v, ok := getFloat(get, "rsi"); ok {
		rsi := v
		rec.RSI = &rsi
	}
	if v, ok := getFloat(get, "sentiment_score"); ok {
		rec.Sentiment = v
	}
	if v, ok := getFloat(get, "predicted_close"); ok {
		rec.PredictedClose = v
		rec.HasForecast = true
	}
	if v, ok := getFloat(get, "forecast_confidence"); ok {
		rec.ForecastConfidence = v
	}
	return rec, nil
}

func getFloat(get func(string) (string, bool), name string) (float64, bool) {
	raw, ok := get(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
