package mailer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/checkcalendar-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMTP is a minimal SMTP server speaking just enough of the protocol
// for one delivery. greet=false makes it accept connections and stay silent.
type fakeSMTP struct {
	ln    net.Listener
	greet bool

	mu   sync.Mutex
	rcpt []string
	data string
}

func startFakeSMTP(t *testing.T, greet bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, greet: greet}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	if !s.greet {
		_, _ = bufio.NewReader(conn).ReadString('\n') // hold the connection open
		return
	}
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 fake.local ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake.local")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.TrimSpace(line[len("RCPT TO:"):]))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func (s *fakeSMTP) config() *config.Config {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	return &config.Config{
		SMTPHost:            host,
		SMTPPort:            port,
		MailFromName:        "CheckCalendar Pro",
		MailFromAddress:     "noreply@example.com",
		SMTPConnectTimeout:  time.Second,
		SMTPGreetingTimeout: 200 * time.Millisecond,
		SMTPSocketTimeout:   time.Second,
	}
}

func TestSMTP_DeliversMultipartMessage(t *testing.T) {
	srv := startFakeSMTP(t, true)
	m := NewSMTP(srv.config())

	err := m.SendEmail(context.Background(), OTPMessage("user@example.com", "123456", 5*time.Minute))
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"<user@example.com>"}, srv.rcpt)
	assert.Contains(t, srv.data, "Subject: Your CheckCalendar Verification Code")
	assert.Contains(t, srv.data, "multipart/alternative")
	assert.Contains(t, srv.data, "Your verification code is: 123456")
}

func TestSMTP_GreetingTimeout(t *testing.T) {
	srv := startFakeSMTP(t, false)
	m := NewSMTP(srv.config())

	start := time.Now()
	err := m.SendEmail(context.Background(), OTPMessage("user@example.com", "123456", 5*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp greeting")
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.True(t, ne.Timeout())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTP_ContextCancelAbortsAttempt(t *testing.T) {
	srv := startFakeSMTP(t, false)
	cfg := srv.config()
	cfg.SMTPGreetingTimeout = 10 * time.Second
	m := NewSMTP(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := m.SendEmail(ctx, OTPMessage("user@example.com", "123456", 5*time.Minute))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTP_RequireTLSWithoutStartTLS(t *testing.T) {
	srv := startFakeSMTP(t, true)
	cfg := srv.config()
	cfg.SMTPRequireTLS = true
	m := NewSMTP(cfg)

	err := m.SendEmail(context.Background(), OTPMessage("user@example.com", "123456", 5*time.Minute))
	assert.ErrorContains(t, err, "STARTTLS")
}

func TestSMTP_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	m := NewSMTP(&config.Config{SMTPHost: host, SMTPPort: port, SMTPConnectTimeout: time.Second})
	err = m.SendEmail(context.Background(), Message{To: "user@example.com"})
	assert.ErrorContains(t, err, "smtp connect")
}
