package audit

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the audit sinks. With an empty Filename and Stdout false
// the logger discards everything, which tests use.
type Config struct {
	// Filename is the audit file path. Empty disables the file sink.
	Filename string `mapstructure:"filename"`
	// MaxSizeMB rotates the file once it exceeds this size.
	MaxSizeMB int `mapstructure:"max-size-mb"`
	// MaxBackups caps the number of rotated files kept.
	MaxBackups int `mapstructure:"max-backups"`
	// MaxAgeDays drops rotated files older than this.
	MaxAgeDays int `mapstructure:"max-age-days"`
	// Stdout mirrors every line to standard output.
	Stdout bool `mapstructure:"stdout"`
}

// Logger is the append-only security audit trail. Every line is
// "2006-01-02 15:04:05 [TAG] detail". It records connection lifecycle,
// authentication attempts, message routing and delivery errors; it is
// separate from the operational zap log so the trail survives log level
// changes and reconfiguration.
type Logger struct {
	mu  sync.Mutex
	out io.Writer

	file  io.Closer
	clock func() time.Time
}

// NewLogger opens the audit trail described by cfg.
func NewLogger(cfg Config) *Logger {
	var sinks []io.Writer
	var file io.Closer

	if cfg.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		}
		sinks = append(sinks, lj)
		file = lj
	}
	if cfg.Stdout {
		sinks = append(sinks, os.Stdout)
	}

	var out io.Writer = io.Discard
	switch len(sinks) {
	case 1:
		out = sinks[0]
	case 2:
		out = io.MultiWriter(sinks...)
	}

	return &Logger{
		out:   out,
		file:  file,
		clock: time.Now,
	}
}

// Nop returns a logger that discards every event.
func Nop() *Logger {
	return &Logger{
		out:   io.Discard,
		clock: time.Now,
	}
}

// Connect records an accepted TCP connection.
func (l *Logger) Connect(remote string) {
	l.logf("CONNECT", "client connected from %s", remote)
}

// LoginAttempt records that a login was attempted for username, before the
// outcome is known.
func (l *Logger) LoginAttempt(username string) {
	l.logf("LOGIN_ATTEMPT", "user=%s", username)
}

// LoginResult records the outcome of a login attempt.
func (l *Logger) LoginResult(username, result string) {
	l.logf("LOGIN_RESULT", "user=%s result=%s", username, result)
}

// MalformedInput records undecodable or schema-invalid input. username is
// empty before authentication.
func (l *Logger) MalformedInput(username string, err error) {
	if username == "" {
		username = "unknown"
	}
	l.logf("MALFORMED_JSON", "user=%s error=%v", username, err)
}

// Message records one routed chat message. to is the recipient username,
// a comma-joined recipient list for MULTI, or "ALL" for broadcasts. size is
// the inbound payload length in bytes.
func (l *Logger) Message(from, to, kind string, size int) {
	l.logf("MSG", "%s -> %s | %s | %d bytes", from, to, kind, size)
}

// MessageMulti records a MULTI message with its recipient list.
func (l *Logger) MessageMulti(from string, to []string, size int) {
	l.Message(from, strings.Join(to, ","), "MULTI", size)
}

// Logout records an explicit LOGOUT request.
func (l *Logger) Logout(username string) {
	l.logf("LOGOUT", "user=%s", username)
}

// Disconnect records the end of a connection. username is empty when the
// peer never authenticated; d is the authenticated session duration.
func (l *Logger) Disconnect(username string, d time.Duration) {
	if username == "" {
		l.logf("DISCONNECT", "unknown client")
		return
	}
	l.logf("DISCONNECT", "user=%s duration=%s", username, d.Round(time.Second))
}

// SendError records a failed outbound delivery write.
func (l *Logger) SendError(username string, err error) {
	l.logf("SEND_ERROR", "user=%s error=%v", username, err)
}

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) logf(tag, format string, args ...any) {
	line := fmt.Sprintf("%s [%s] %s\n",
		l.clock().Format("2006-01-02 15:04:05"), tag, fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}
