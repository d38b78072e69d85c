package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/history"
	"btc-short-alerts/internal/position"
)

const lookback = 6 * time.Hour

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state.json"), lookback, zerolog.Nop())
}

func writeRaw(t *testing.T, s *Store, content string) {
	t.Helper()
	if err := os.WriteFile(s.Path(), []byte(content), 0o600); err != nil {
		t.Fatalf("写入状态文件失败: %v", err)
	}
}

func assertDefault(t *testing.T, doc Document) {
	t.Helper()
	if doc.Position.IsOpen() {
		t.Fatalf("应为空仓, 实际 %+v", doc.Position)
	}
	if doc.History == nil || doc.History.Len() != 0 {
		t.Fatal("历史应为空")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	assertDefault(t, newTestStore(t).Load())
}

func TestLoadCorruptFileReturnsDefaults(t *testing.T) {
	for _, content := range []string{"{not json", "null", "[]", `{"position_open": "yes"}`, ""} {
		s := newTestStore(t)
		writeRaw(t, s, content)
		assertDefault(t, s.Load())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	doc := NewDocument(lookback)
	doc.History.Append(history.Sample{Time: base, Price: decimal.RequireFromString("64000.12")})
	doc.History.Append(history.Sample{Time: base.Add(time.Minute), Price: decimal.RequireFromString("64100.5")})
	doc.Position, _ = position.NewShort(decimal.RequireFromString("64100.5"), base.Add(time.Minute))

	if err := s.Save(doc); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	loaded := s.Load()

	if !loaded.Position.IsOpen() || !loaded.Position.EntryPrice.Equal(doc.Position.EntryPrice) {
		t.Fatalf("仓位不一致: %+v", loaded.Position)
	}
	if !loaded.Position.EntryTime.Equal(doc.Position.EntryTime) {
		t.Fatalf("入场时间不一致: %s vs %s", loaded.Position.EntryTime, doc.Position.EntryTime)
	}
	got, want := loaded.History.Samples(), doc.History.Samples()
	if len(got) != len(want) {
		t.Fatalf("历史长度 %d, 期望 %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Time.Equal(want[i].Time) || !got[i].Price.Equal(want[i].Price) {
			t.Fatalf("第 %d 个样本不一致: %+v vs %+v", i, got[i], want[i])
		}
	}

	first, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if err := s.Save(loaded); err != nil {
		t.Fatalf("第二次保存失败: %v", err)
	}
	second, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("save(load()) 应幂等\n第一次:\n%s\n第二次:\n%s", first, second)
	}
}

func TestSaveWritesDocumentedSchema(t *testing.T) {
	s := newTestStore(t)
	doc := NewDocument(lookback)
	doc.History.Append(history.Sample{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromInt(100)})

	if err := s.Save(doc); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	data, _ := os.ReadFile(s.Path())

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("保存的文件不是合法 JSON: %v", err)
	}
	if raw["position_open"] != false {
		t.Fatalf("position_open 应为 false, 实际 %v", raw["position_open"])
	}
	if raw["entry_price"] != nil || raw["entry_timestamp"] != nil {
		t.Fatalf("空仓时入场字段应为 null: %s", data)
	}
	hist, ok := raw["price_history"].([]any)
	if !ok || len(hist) != 1 {
		t.Fatalf("price_history 不正确: %v", raw["price_history"])
	}
	entry := hist[0].(map[string]any)
	if _, ok := entry["price"].(float64); !ok {
		t.Fatalf("price 应为 JSON 数字, 实际 %T", entry["price"])
	}
	if entry["timestamp"] != "2024-05-01T00:00:00Z" {
		t.Fatalf("timestamp 不正确: %v", entry["timestamp"])
	}
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s, `{"price_history": [{"timestamp": "2024-05-01T00:00:00Z", "price": 100}]}`)

	doc := s.Load()
	if doc.Position.IsOpen() {
		t.Fatal("缺少 position_open 时应默认为空仓")
	}
	if doc.History.Len() != 1 {
		t.Fatalf("应有 1 个样本, 实际 %d", doc.History.Len())
	}

	writeRaw(t, s, `{"position_open": false}`)
	assertDefault(t, s.Load())
}

func TestLoadMigratesLegacyDocument(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s, `{
  "position_open": true,
  "entry_price": 65000.5,
  "entry_timestamp": "2024-05-01T10:00:00.123456",
  "price_history": [
    {"timestamp": "2024-05-01T10:01:00.000001", "price": 65010},
    {"timestamp": "2024-05-01T10:00:00.5", "price": 65000.5},
    {"timestamp": "garbage", "price": 1},
    {"timestamp": "2024-05-01T10:02:00", "price": -3}
  ]
}`)

	doc := s.Load()
	if !doc.Position.IsOpen() || !doc.Position.EntryPrice.Equal(decimal.RequireFromString("65000.5")) {
		t.Fatalf("旧格式持仓未恢复: %+v", doc.Position)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.Local)
	if !doc.Position.EntryTime.Equal(want) {
		t.Fatalf("入场时间 %s, 期望 %s", doc.Position.EntryTime, want)
	}

	samples := doc.History.Samples()
	if len(samples) != 2 {
		t.Fatalf("应有 2 个有效样本, 实际 %d", len(samples))
	}
	if !samples[0].Time.Before(samples[1].Time) {
		t.Fatal("样本应按时间升序重排")
	}
}

func TestLoadResetsOpenPositionWithoutEntryPrice(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s, `{"position_open": true, "entry_price": null, "entry_timestamp": null, "price_history": []}`)

	if doc := s.Load(); doc.Position.IsOpen() {
		t.Fatal("缺少入场价的持仓应加载为空仓")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Save(NewDocument(lookback)); err != nil {
			t.Fatalf("保存失败: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("遗留临时文件: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("目录中应只有状态文件, 实际 %d 项", len(entries))
	}
}

func TestSaveFailsForMissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing", "state.json"), lookback, zerolog.Nop())
	if err := s.Save(NewDocument(lookback)); err == nil {
		t.Fatal("目录不存在时应报错")
	}
}
