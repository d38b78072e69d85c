package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sampleAt(base time.Time, offset time.Duration, price int64) Sample {
	return Sample{Time: base.Add(offset), Price: decimal.NewFromInt(price)}
}

func TestAppendPrunesOlderThanLookback(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(6 * time.Hour)

	w.Append(sampleAt(base, 0, 100))
	w.Append(sampleAt(base, 3*time.Hour, 101))
	w.Append(sampleAt(base, 7*time.Hour, 102))

	if w.Len() != 2 {
		t.Fatalf("裁剪后应剩 2 个样本, 实际 %d", w.Len())
	}

	latest, _ := w.Newest()
	cutoff := latest.Time.Add(-w.Lookback())
	for _, s := range w.Samples() {
		if s.Time.Before(cutoff) {
			t.Fatalf("样本 %s 早于截止时间 %s", s.Time, cutoff)
		}
	}
}

func TestAppendKeepsSampleExactlyAtCutoff(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(6 * time.Hour)

	w.Append(sampleAt(base, 0, 100))
	w.Append(sampleAt(base, 6*time.Hour, 105))

	if w.Len() != 2 {
		t.Fatalf("恰好处于回看边界的样本应保留, 实际 %d 个", w.Len())
	}
}

func TestAppendPrunesStaleHistoryAfterGap(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := FromSamples(time.Hour, []Sample{
		sampleAt(base, 0, 90),
		sampleAt(base, time.Minute, 91),
	})

	w.Append(sampleAt(base, 48*time.Hour, 120))

	if w.Len() != 1 {
		t.Fatalf("应只保留新样本, 实际 %d", w.Len())
	}
	low, ok := w.Low()
	if !ok || !low.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("最低价应为 120, 实际 %s (ok=%v)", low, ok)
	}
}

func TestLowEmptyWindow(t *testing.T) {
	w := NewWindow(0)
	if _, ok := w.Low(); ok {
		t.Fatal("空窗口不应返回最低价")
	}
	if w.Lookback() != DefaultLookback {
		t.Fatalf("应使用默认回看时长, 实际 %s", w.Lookback())
	}
}

func TestLowReturnsMinimum(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(6 * time.Hour)
	for i, p := range []int64{104, 99, 101, 98, 103} {
		w.Append(sampleAt(base, time.Duration(i)*time.Minute, p))
	}

	low, ok := w.Low()
	if !ok {
		t.Fatal("应返回最低价")
	}
	if !low.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("最低价应为 98, 实际 %s", low)
	}
	if w.Span() != 4*time.Minute {
		t.Fatalf("时间跨度不正确: %s", w.Span())
	}
}

func TestSamplesReturnsCopy(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(time.Hour)
	w.Append(sampleAt(base, 0, 100))

	out := w.Samples()
	out[0].Price = decimal.NewFromInt(1)

	low, _ := w.Low()
	if !low.Equal(decimal.NewFromInt(100)) {
		t.Fatal("修改 Samples() 返回值不应影响窗口")
	}
}
