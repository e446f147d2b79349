package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"text/template"
	"time"
)

// ErrDelivery wraps every failed send.
var ErrDelivery = errors.New("notification delivery failed")

// Notification is one event ready to be announced.
type Notification struct {
	Contract    string
	Label       string
	BlockNumber uint64
	TxHash      string
	TxURL       string
}

// Sender delivers a notification to an external channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// FormatHTML renders the Telegram-style HTML message.
func FormatHTML(n Notification) string {
	return fmt.Sprintf("Multisig %s \nBlock %d \n<a href='%s'>TX link</a>",
		html.EscapeString(n.Label), n.BlockNumber, html.EscapeString(n.TxURL))
}

// TxURL joins an explorer base (e.g. https://escan.live) with the tx path.
func TxURL(explorer, txHash string) string {
	return strings.TrimRight(explorer, "/") + "/tx/" + txHash
}

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sink.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

// NewSlackSender builds a Slack-compatible webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeamsSender builds a Teams-compatible webhook sink.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

func (s *httpSender) Send(ctx context.Context, n Notification) error {
	bodyStr, err := executeTemplate(s.render, n)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	reqBody, err := json.Marshal(map[string]string{
		"text": bodyStr,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal body: %w", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("%w: new request: %w", ErrDelivery, err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sink http status %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = "Multisig {{.Label}}\nBlock {{.BlockNumber}}\n{{.TxURL}}"
	}
	funcs := template.FuncMap{
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
