package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"vigil/internal/logger"
	"vigil/internal/signal"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// feedSchema 约束入站 JSON 行的形状；校验失败的行按坏数据跳过。
const feedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["symbol", "date", "close", "volume"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1},
    "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "open": {"type": "number"},
    "high": {"type": "number"},
    "low": {"type": "number"},
    "close": {"type": "number"},
    "volume": {"type": "number", "minimum": 0},
    "rsi": {"type": "number", "minimum": 0, "maximum": 100},
    "sentiment_score": {"type": "number", "minimum": -1, "maximum": 1},
    "predicted_close": {"type": "number"},
    "forecast_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "macro": {"type": "object", "additionalProperties": {"type": "number"}}
  }
}`

var compiledFeedSchema = jsonschema.MustCompileString("feed.json", feedSchema)

// LoadJSONFeed 读取 JSON-lines 实时喂入文件，返回按 symbol 分组、日期升序的记录。
func LoadJSONFeed(path string) (map[string][]DayRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed failed: %w", err)
	}
	defer f.Close()

	out := make(map[string][]DayRecord)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		rec, err := ParseFeedLine(raw)
		if err != nil {
			logger.Warnf("ingest: skipping feed line %d: %v", line, err)
			continue
		}
		out[rec.Symbol] = append(out[rec.Symbol], rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading feed failed: %w", err)
	}

	for sym := range out {
		records := out[sym]
		sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
		out[sym] = records
	}
	return out, nil
}

// ParseFeedLine 校验并解析单行 JSON 记录。
func ParseFeedLine(raw string) (DayRecord, error) {
	if !gjson.Valid(raw) {
		return DayRecord{}, fmt.Errorf("invalid json")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return DayRecord{}, err
	}
	if err := compiledFeedSchema.Validate(doc); err != nil {
		return DayRecord{}, fmt.Errorf("schema violation: %w", err)
	}

	parsed := gjson.Parse(raw)
	date, err := parseDate(parsed.Get("date").String())
	if err != nil {
		return DayRecord{}, err
	}
	rec := DayRecord{
		Symbol:    strings.ToUpper(strings.TrimSpace(parsed.Get("symbol").String())),
		Date:      signal.Day(date),
		Open:      parsed.Get("open").Float(),
		High:      parsed.Get("high").Float(),
		Low:       parsed.Get("low").Float(),
		Close:     parsed.Get("close").Float(),
		Volume:    parsed.Get("volume").Float(),
		Sentiment: parsed.Get("sentiment_score").Float(),
		HasPrice:  parsed.Get("close").Exists(),
		HasVolume: parsed.Get("volume").Exists(),
	}
	if rsi := parsed.Get("rsi"); rsi.Exists() {
		v := rsi.Float()
		rec.RSI = &v
	}
	if pred := parsed.Get("predicted_close"); pred.Exists() {
		rec.PredictedClose = pred.Float()
		rec.ForecastConfidence = parsed.Get("forecast_confidence").Float()
		rec.HasForecast = true
	}
	if macro := parsed.Get("macro"); macro.Exists() && macro.IsObject() {
		rec.Macro = make(map[string]float64)
		macro.ForEach(func(key, value gjson.Result) bool {
			rec.Macro[key.String()] = value.Float()
			return true
		})
	}
	return rec, nil
}
