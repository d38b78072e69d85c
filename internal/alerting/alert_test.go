package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/detector"
)

type recordingNotifier struct {
	name    string
	err     error
	entries int
	exits   int
}

func (r *recordingNotifier) Channel() string { return r.name }

func (r *recordingNotifier) NotifyEntry(context.Context, EntryAlert) error {
	r.entries++
	return r.err
}

func (r *recordingNotifier) NotifyExit(context.Context, ExitAlert) error {
	r.exits++
	return r.err
}

func TestMultiDeliversToEveryChannel(t *testing.T) {
	a := &recordingNotifier{name: "a", err: errors.New("down")}
	b := &recordingNotifier{name: "b"}
	m := NewMulti(a, nil, b)

	if m.Len() != 2 {
		t.Fatalf("nil 应被忽略, 实际 %d 个渠道", m.Len())
	}
	err := m.NotifyEntry(context.Background(), sampleEntry())
	if err == nil || !strings.Contains(err.Error(), "a: down") {
		t.Fatalf("应返回失败渠道的错误, 实际 %v", err)
	}
	if a.entries != 1 || b.entries != 1 {
		t.Fatalf("每个渠道都应收到告警: a=%d b=%d", a.entries, b.entries)
	}

	if err := NewMulti(b).NotifyExit(context.Background(), sampleExit(detector.ExitStopLoss)); err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if got := m.Channels(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("渠道名称不正确: %v", got)
	}
}

func TestMultiWithoutChannels(t *testing.T) {
	if err := NewMulti().NotifyEntry(context.Background(), sampleEntry()); err == nil {
		t.Fatal("没有渠道时应报错")
	}
}

func TestSubjects(t *testing.T) {
	if got := EntrySubject(sampleEntry()); got != "🚨 BTC SHORT SIGNAL - 3.06% Spike" {
		t.Fatalf("入场标题不正确: %q", got)
	}
	if got := ExitSubject(sampleExit(detector.ExitTakeProfit)); got != "✅ TAKE PROFIT" {
		t.Fatalf("止盈标题不正确: %q", got)
	}
	if got := ExitSubject(sampleExit(detector.ExitStopLoss)); got != "🛑 STOP LOSS" {
		t.Fatalf("止损标题不正确: %q", got)
	}
}

func TestRenderEntryHTML(t *testing.T) {
	alert := sampleEntry()
	alert.EntryPrice = decimal.RequireFromString("64123.456")
	body, err := renderEntryHTML(alert)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	for _, want := range []string{"3.06%", "$98.00", "$64,123.46", "$98.48 (-2.5%)", "$103.53 (+2.5%)"} {
		if !strings.Contains(body, want) {
			t.Fatalf("HTML 应包含 %q", want)
		}
	}
}

func TestRenderExitHTML(t *testing.T) {
	body, err := renderExitHTML(sampleExit(detector.ExitStopLoss))
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if !strings.Contains(body, "SL Triggered") || !strings.Contains(body, "#f44336") {
		t.Fatalf("止损 HTML 不正确:\n%s", body)
	}
}

func TestFormatUSD(t *testing.T) {
	cases := map[string]string{
		"0":           "$0.00",
		"98.475":      "$98.48",
		"1234":        "$1,234.00",
		"64000.125":   "$64,000.13",
		"1234567.891": "$1,234,567.89",
		"-2500.5":     "-$2,500.50",
		"100000":      "$100,000.00",
	}
	for in, want := range cases {
		if got := formatUSD(decimal.RequireFromString(in)); got != want {
			t.Fatalf("formatUSD(%s) = %s, 期望 %s", in, got, want)
		}
	}
}
