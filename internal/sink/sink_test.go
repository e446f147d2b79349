package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sampleNotification() Notification {
	return Notification{
		Contract:    "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Label:       "TreasurySafe",
		BlockNumber: 10,
		TxHash:      "0x1234567890abcdef",
		TxURL:       TxURL("https://escan.live/", "0x1234567890abcdef"),
	}
}

func TestFormatHTML(t *testing.T) {
	got := FormatHTML(sampleNotification())
	want := "Multisig TreasurySafe \nBlock 10 \n<a href='https://escan.live/tx/0x1234567890abcdef'>TX link</a>"
	if got != want {
		t.Fatalf("unexpected message:\n%q\nwant\n%q", got, want)
	}

	n := sampleNotification()
	n.Label = "<b>evil</b>"
	if strings.Contains(FormatHTML(n), "<b>") {
		t.Fatalf("label must be escaped: %s", FormatHTML(n))
	}
}

func TestSlackSenderRendersTemplate(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		got = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewSlackSender(server.URL, "ALERT {{.Label}} {{.BlockNumber}} {{short_addr .TxHash}}")
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	if err := sender.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got == "" || !strings.Contains(got, "ALERT TreasurySafe 10 0x1234") {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestWebhookStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, http.MethodPost, "msg", nil)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	err = sender.Send(context.Background(), sampleNotification())
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery on 502, got %v", err)
	}
}

func TestTelegramSenderPostsHTML(t *testing.T) {
	var (
		path string
		msg  telegramMessage
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&msg)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	sender, err := NewTelegramSender(server.URL, "123:abc", "@multisig")
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if err := sender.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path: %s", path)
	}
	if msg.ChatID != "@multisig" || msg.ParseMode != "HTML" || !msg.DisableWebPagePreview {
		t.Fatalf("unexpected message envelope: %+v", msg)
	}
	if !strings.Contains(msg.Text, "Multisig TreasurySafe") || !strings.Contains(msg.Text, "/tx/0x1234567890abcdef") {
		t.Fatalf("unexpected text: %s", msg.Text)
	}
}

func TestTelegramSenderReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5"}`))
	}))
	defer server.Close()

	sender, err := NewTelegramSender(server.URL, "123:abc", "42")
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	err = sender.Send(context.Background(), sampleNotification())
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if !strings.Contains(err.Error(), "Too Many Requests") {
		t.Fatalf("description lost: %v", err)
	}
}

func TestTelegramSenderRequiresCredentials(t *testing.T) {
	if _, err := NewTelegramSender("", "", "42"); err == nil {
		t.Fatalf("expected missing token to fail")
	}
	if _, err := NewTelegramSender("", "t", ""); err == nil {
		t.Fatalf("expected missing chat id to fail")
	}
}
