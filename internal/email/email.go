// Package email sends an alert mail for each hit at or above a confidence
// threshold.
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/YannKr/countersignal/internal/metrics"
	"github.com/YannKr/countersignal/internal/model"
)

type Mailer struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string
	To            []string
	MinConfidence model.Confidence

	// send delivers a composed message; nil means SMTP.
	send func(msg []byte) error
	wg   sync.WaitGroup
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.Host != "" && len(m.To) > 0
}

// Notify mails an alert for h in the background.
func (m *Mailer) Notify(h *model.Hit) {
	if !m.Enabled() {
		return
	}
	if threshold := model.Confidence(strings.ToUpper(string(m.minConfidence()))); !h.Confidence.AtLeast(threshold) {
		return
	}
	msg, err := m.compose(h)
	if err != nil {
		slog.Error("compose hit alert", "hit", h.ID, "error", err)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		send := m.send
		if send == nil {
			send = m.sendSMTP
		}
		if err := send(msg); err != nil {
			metrics.EmailAlerts.WithLabelValues("failed").Inc()
			slog.Warn("hit alert mail failed", "hit", h.ID, "error", err)
			return
		}
		metrics.EmailAlerts.WithLabelValues("sent").Inc()
		slog.Info("hit alert mailed", "hit", h.ID, "to", strings.Join(m.To, ","))
	}()
}

// Close waits for in-flight mails.
func (m *Mailer) Close() {
	if m == nil {
		return
	}
	m.wg.Wait()
}

func (m *Mailer) minConfidence() model.Confidence {
	if m.MinConfidence == "" {
		return model.ConfidenceHigh
	}
	return m.MinConfidence
}

func (m *Mailer) compose(h *model.Hit) ([]byte, error) {
	subject := fmt.Sprintf("[%s] canary hit on %s", h.Confidence, h.Token)

	var text strings.Builder
	fmt.Fprintf(&text, "A canary token was fetched.\n\n")
	fmt.Fprintf(&text, "Confidence: %s\n", h.Confidence)
	fmt.Fprintf(&text, "Campaign:   %s\n", h.CampaignID)
	fmt.Fprintf(&text, "Token:      %s\n", h.Token)
	fmt.Fprintf(&text, "Received:   %s\n", h.ReceivedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&text, "Request:    %s %s\n", h.Method, h.RawMetadata.Path)
	fmt.Fprintf(&text, "Source IP:  %s\n", h.SourceIP)
	fmt.Fprintf(&text, "User-Agent: %s\n", h.UserAgent)
	fmt.Fprintf(&text, "Signals:    %s\n\n%s\n", strings.Join(h.Signals, ", "), h.Rationale)

	rich := fmt.Sprintf(`<html><body>
<p>A canary token was fetched with <strong>%s</strong> confidence.</p>
<table>
<tr><td>Campaign</td><td>%s</td></tr>
<tr><td>Token</td><td><code>%s</code></td></tr>
<tr><td>Source IP</td><td>%s</td></tr>
<tr><td>User-Agent</td><td>%s</td></tr>
</table>
<p>%s</p>
</body></html>`,
		html.EscapeString(string(h.Confidence)), html.EscapeString(h.CampaignID), html.EscapeString(h.Token),
		html.EscapeString(h.SourceIP), html.EscapeString(h.UserAgent), html.EscapeString(h.Rationale))

	var hdr mail.Header
	hdr.SetDate(h.ReceivedAt)
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	hdr.SetAddressList("From", []*mail.Address{from})
	to := make([]*mail.Address, 0, len(m.To))
	for _, addr := range m.To {
		a, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("to address %q: %w", addr, err)
		}
		to = append(to, a)
	}
	hdr.SetAddressList("To", to)
	hdr.SetSubject(subject)
	if err := hdr.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, hdr)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	for _, part := range []struct{ mediaType, body string }{
		{"text/plain", text.String()},
		{"text/html", rich},
	} {
		var ih mail.InlineHeader
		ih.SetContentType(part.mediaType, map[string]string{"charset": "utf-8"})
		pw, err := w.CreatePart(ih)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", part.mediaType, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return nil, err
		}
		if err := pw.Close(); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Mailer) sendSMTP(msg []byte) error {
	addr := net.JoinHostPort(m.Host, fmt.Sprint(m.Port))

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			slog.Warn("smtp starttls failed, continuing without", "error", err)
		}
	}

	if m.User != "" {
		if err := client.Auth(smtp.PlainAuth("", m.User, m.Pass, m.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, to := range m.To {
		a, err := mail.ParseAddress(to)
		if err != nil {
			return fmt.Errorf("smtp rcpt to: %w", err)
		}
		if err := client.Rcpt(a.Address); err != nil {
			return fmt.Errorf("smtp rcpt to: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}
