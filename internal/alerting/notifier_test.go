package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
	"price-move-alerts/internal/tracking"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := AlertNotification(sampleAlert(), nil)

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "BTCUSDT increased by 3.00% in 5 minutes") {
		t.Fatalf("text 内容不正确: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), AlertNotification(sampleAlert(), nil)); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), AlertNotification(sampleAlert(), nil)); err == nil {
		t.Fatal("非 2xx 响应应报错")
	}
}

func TestFanoutWrapsTransportFaults(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("boom")}

	err := Fanout{ok, bad}.Notify(context.Background(), AlertNotification(sampleAlert(), nil))
	if err == nil {
		t.Fatal("应返回错误")
	}
	var tf *faults.TransportFault
	if !errors.As(err, &tf) || tf.Channel != "bad" || tf.Pair != "BTCUSDT" {
		t.Fatalf("应包装为 TransportFault, 实际 %v", err)
	}
	if len(ok.received()) != 1 {
		t.Fatal("失败的渠道不应影响其他渠道")
	}
}

func TestAlertNotificationText(t *testing.T) {
	alert := sampleAlert()
	alert.Direction = market.DirectionDown
	alert.ChangePct = decimal.RequireFromString("-2.5")

	note := AlertNotification(alert, []string{"log"})
	if note.Kind != KindAlert || note.Pair != "BTCUSDT" {
		t.Fatalf("通知元数据不正确: %#v", note)
	}
	if !strings.Contains(note.Text, "BTCUSDT decreased by 2.50% in 5 minutes") {
		t.Fatalf("文本不正确: %q", note.Text)
	}
	if !strings.Contains(note.Text, "Threshold: 2.00%") {
		t.Fatalf("应包含阈值: %q", note.Text)
	}
}

func TestSummaryNotificationText(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	summary := tracking.Summary{
		SessionID:        "BTCUSDT_20240101_000000",
		Pair:             "BTCUSDT",
		Direction:        market.DirectionUp,
		TriggerChangePct: decimal.NewFromInt(3),
		StartPrice:       decimal.NewFromInt(100),
		ClosePrice:       decimal.NewFromInt(104),
		MinPrice:         decimal.NewFromInt(99),
		MaxPrice:         decimal.NewFromInt(105),
		FinalChangePct:   decimal.NewFromInt(4),
		MinChangePct:     decimal.NewFromInt(-1),
		MaxChangePct:     decimal.NewFromInt(5),
		Trend:            tracking.TrendBullish,
		DataPoints:       12,
		ClosedAt:         start.Add(time.Hour),
		Checkpoints: []tracking.Checkpoint{
			{Offset: 5 * time.Minute, Reached: true, Price: decimal.NewFromInt(101), ChangePct: decimal.NewFromInt(1)},
			{Offset: 60 * time.Minute},
		},
	}

	note := SummaryNotification(summary, nil)
	if note.Kind != KindSummary {
		t.Fatalf("类型应为 summary, 实际 %s", note.Kind)
	}
	for _, want := range []string{"+5m +1.00%", "+60m n/a", "Final: +4.00%", "BTCUSDT_20240101_000000"} {
		if !strings.Contains(note.Text, want) {
			t.Fatalf("文本缺少 %q: %q", want, note.Text)
		}
	}
}

func TestDispatcherDeliversInOrderAndDrains(t *testing.T) {
	next := &recordingNotifier{name: "rec", delay: 5 * time.Millisecond}
	d := NewDispatcher(next, DispatcherOptions{QueueSize: 8, DeliveryTimeout: time.Second}, testLogger())

	for _, pair := range []string{"AUSDT", "BUSDT", "CUSDT"} {
		if err := d.Notify(context.Background(), Notification{Pair: pair, Text: pair}); err != nil {
			t.Fatalf("入队失败: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close 应等待队列清空: %v", err)
	}

	got := next.received()
	if len(got) != 3 || got[0] != "AUSDT" || got[2] != "CUSDT" {
		t.Fatalf("投递顺序不正确: %v", got)
	}

	if err := d.Notify(context.Background(), Notification{Pair: "DUSDT"}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("关闭后应拒绝入队, 实际 %v", err)
	}
}

func TestDispatcherSurvivesTransportFailure(t *testing.T) {
	next := &recordingNotifier{name: "bad", err: errors.New("down")}
	d := NewDispatcher(next, DispatcherOptions{QueueSize: 2}, testLogger())

	if err := d.Notify(context.Background(), Notification{Pair: "AUSDT"}); err != nil {
		t.Fatalf("投递失败不应影响入队: %v", err)
	}
	if err := d.Notify(context.Background(), Notification{Pair: "BUSDT"}); err != nil {
		t.Fatalf("投递失败不应影响入队: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close 失败: %v", err)
	}
	if len(next.received()) != 2 {
		t.Fatalf("两条消息都应尝试投递, 实际 %d", len(next.received()))
	}
}

type recordingNotifier struct {
	name  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	pairs []string
}

func (r *recordingNotifier) Channel() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, note Notification) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.pairs = append(r.pairs, note.Pair)
	r.mu.Unlock()
	return r.err
}

func (r *recordingNotifier) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pairs...)
}

func sampleAlert() market.Alert {
	return market.Alert{
		Pair:         "BTCUSDT",
		Time:         time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC),
		Direction:    market.DirectionUp,
		ChangePct:    decimal.NewFromInt(3),
		TriggerPrice: decimal.NewFromInt(103),
		ThresholdPct: decimal.NewFromInt(2),
		Lookback:     5 * time.Minute,
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
