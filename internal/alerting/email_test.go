package alerting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/go-mail"

	"btc-short-alerts/internal/detector"
)

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func newTestEmail(sender *fakeSender, recipients ...string) *EmailNotifier {
	n := NewEmailNotifier(EmailOptions{
		Username:   "watcher@example.com",
		Password:   "app-password",
		Recipients: recipients,
	}, testLogger())
	n.newSender = func() (mailSender, error) { return sender, nil }
	return n
}

func TestEmailNotifierSendsToAllRecipients(t *testing.T) {
	sender := &fakeSender{}
	n := newTestEmail(sender, "a@example.com", " b@example.com ", "")

	if err := n.NotifyEntry(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("NotifyEntry 应成功: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("应发送 1 封邮件, 实际 %d", len(sender.sent))
	}

	var buf bytes.Buffer
	if _, err := sender.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("序列化邮件失败: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"a@example.com", "b@example.com", "watcher@example.com", "text/html", "text/plain"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("邮件应包含 %q:\n%s", want, raw)
		}
	}
}

func TestEmailNotifierDefaults(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{Username: "u@example.com"}, testLogger())
	if n.opts.Host != "smtp.gmail.com" || n.opts.Port != 587 || n.opts.From != "u@example.com" {
		t.Fatalf("默认值不正确: %+v", n.opts)
	}
}

func TestEmailNotifierRequiresRecipients(t *testing.T) {
	sender := &fakeSender{}
	n := newTestEmail(sender)
	if err := n.NotifyExit(context.Background(), sampleExit(detector.ExitTakeProfit)); err == nil {
		t.Fatal("没有收件人时应报错")
	}
	if len(sender.sent) != 0 {
		t.Fatal("不应发送邮件")
	}
}

func TestEmailNotifierPropagatesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("535 auth failed")}
	n := newTestEmail(sender, "a@example.com")
	err := n.NotifyExit(context.Background(), sampleExit(detector.ExitStopLoss))
	if err == nil || !strings.Contains(err.Error(), "535") {
		t.Fatalf("应返回 SMTP 错误, 实际 %v", err)
	}
}
