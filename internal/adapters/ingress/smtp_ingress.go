package ingress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/scheduler"
	"go.uber.org/zap"
)

// Annotation headers added to every processed message.
const (
	headerMeetingRequest = "X-Meeting-Request"
	headerConfidence     = "X-Meeting-Confidence"
	headerAction         = "X-Meeting-Action"
	headerWorkflow       = "X-Meeting-Workflow"
	headerError          = "X-Meeting-Analysis-Error"
)

// SMTPIngress receives inbound mail, runs it through the scheduling
// pipeline, and forwards the annotated original to the downstream MTA.
// Drafted replies are persisted by the pipeline and are never sent from
// here.
type SMTPIngress struct {
	service      *scheduler.Service
	logger       *zap.Logger
	listenAddr   string
	server       *smtp.Server
	relayAddr    string
	relayPort    int
	relayEnabled bool
}

// NewSMTPIngress creates a new inbound SMTP listener
func NewSMTPIngress(
	service *scheduler.Service,
	logger *zap.Logger,
	listenAddr string,
	relayAddr string,
	relayPort int,
	relayEnabled bool,
) *SMTPIngress {
	return &SMTPIngress{
		service:      service,
		logger:       logger,
		listenAddr:   listenAddr,
		relayAddr:    relayAddr,
		relayPort:    relayPort,
		relayEnabled: relayEnabled,
	}
}

// Start starts the SMTP ingress service
func (f *SMTPIngress) Start() error {
	f.server = smtp.NewServer(&smtpBackend{ingress: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP ingress starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP ingress service
func (f *SMTPIngress) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail runs an email through the scheduling pipeline directly.
// This is mainly used for testing or direct API calls.
func (f *SMTPIngress) ProcessEmail(ctx context.Context, email *core.Email) (*scheduler.Result, error) {
	return f.service.ProcessEmail(ctx, email)
}

// relay forwards the annotated message to the downstream MTA
func (f *SMTPIngress) relay(sender string, recipients []string, emailData []byte) error {
	relayAddr := fmt.Sprintf("%s:%d", f.relayAddr, f.relayPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", relayAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			// Continue with other recipients even if one fails
		} else {
			recipientOK = true
		}
	}

	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err = wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
		// The message is already accepted at this point
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	ingress *SMTPIngress
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		ingress:    b.ingress,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	ingress    *SMTPIngress
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed here)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the email data
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.ingress.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	// Keep a copy of the raw data for later reconstruction
	rawDataCopy := make([]byte, len(rawData))
	copy(rawDataCopy, rawData)

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.ingress.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		s.ingress.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	email := &core.Email{
		Headers: make(map[string][]string),
		Body:    textContent,
		From:    s.sender,
		To:      s.recipients,
	}

	for key, values := range msg.Header {
		email.Headers[key] = values

		if strings.EqualFold(key, "Subject") && len(values) > 0 {
			subject, err := decodeEncodedHeader(values[0])
			if err != nil {
				subject = values[0]
			}
			email.Subject = subject
		}
	}

	senderDomain := "unknown"
	if parts := strings.Split(email.From, "@"); len(parts) == 2 {
		senderDomain = parts[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Pipeline failure never blocks mail flow; the message passes through
	// unscheduled with an error annotation.
	result, pipelineErr := s.ingress.service.ProcessEmail(ctx, email)
	if pipelineErr != nil {
		s.ingress.logger.Error("Failed to process email",
			zap.Error(pipelineErr),
			zap.String("sender", email.From),
			zap.String("sender_domain", senderDomain))
	}

	var annotated bytes.Buffer

	if result != nil && result.Request != nil {
		fmt.Fprintf(&annotated, "%s: true\r\n", headerMeetingRequest)
		fmt.Fprintf(&annotated, "%s: %.1f\r\n", headerConfidence, result.Request.DetectionConfidence)
		if result.Response != nil {
			fmt.Fprintf(&annotated, "%s: %s\r\n", headerAction, result.Response.Action)
		}
		if result.Workflow != nil {
			fmt.Fprintf(&annotated, "%s: %s\r\n", headerWorkflow, result.Workflow.ID)
		}
	} else {
		fmt.Fprintf(&annotated, "%s: false\r\n", headerMeetingRequest)
	}
	if pipelineErr != nil {
		fmt.Fprintf(&annotated, "%s: %s\r\n", headerError, pipelineErr.Error())
	}

	for key, values := range msg.Header {
		for _, value := range values {
			fmt.Fprintf(&annotated, "%s: %s\r\n", key, value)
		}
	}

	fmt.Fprintf(&annotated, "\r\n")

	// Preserve the original body bytes, MIME parts and attachments included
	bodyStartIndex := bytes.Index(rawDataCopy, []byte("\r\n\r\n"))
	if bodyStartIndex == -1 {
		bodyStartIndex = bytes.Index(rawDataCopy, []byte("\n\n"))
		if bodyStartIndex == -1 {
			bodyBytes, err := io.ReadAll(msg.Body)
			if err != nil {
				s.ingress.logger.Error("Failed to read message body", zap.Error(err))
				return err
			}
			annotated.Write(bodyBytes)
		} else {
			annotated.Write(rawDataCopy[bodyStartIndex+2:])
		}
	} else {
		annotated.Write(rawDataCopy[bodyStartIndex+4:])
	}

	if s.ingress.relayEnabled {
		if err := s.ingress.relay(s.sender, s.recipients, annotated.Bytes()); err != nil {
			s.ingress.logger.Error("Failed to relay email",
				zap.Error(err),
				zap.String("sender", email.From))
			return err
		}
	}

	detected := result != nil && result.Request != nil
	fields := []zap.Field{
		zap.String("from", email.From),
		zap.String("sender_domain", senderDomain),
		zap.Bool("meeting_request", detected),
	}
	if detected {
		fields = append(fields, zap.String("request_id", result.Request.ID))
		if result.Response != nil {
			fields = append(fields, zap.String("action", string(result.Response.Action)))
		}
	}
	s.ingress.logger.Info("Processed email", fields...)

	return nil
}

// Logout handles SMTP logout (not needed here)
func (s *smtpSession) Logout() error {
	return nil
}
