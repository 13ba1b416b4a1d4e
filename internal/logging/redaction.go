package logging

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"
)

const redactedValue = "[REDACTED]"

// sensitiveFields are logrus field names whose values never reach the log,
// no matter what they hold. The bridge logs through structured fields, so
// field-name matching covers the credential paths: config passwords, Basic
// auth material, session tokens, and derived IPMI keys.
var sensitiveFields = map[string]struct{}{
	"password":         {},
	"ipmi_password":    {},
	"redfish_password": {},
	"token":            {},
	"x-auth-token":     {},
	"authorization":    {},
	"sik":              {},
	"kg":               {},
}

// Redactor scrubs configured secret values out of log output. Unlike a
// generic line scrubber it only knows two shapes, because those are the
// only shapes the bridge emits: structured field values and free-text
// messages that may embed a secret literal (a password in a URL, an image
// URI with credentials).
type Redactor struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	secrets []string // longest first so overlapping secrets scrub fully
}

// NewRedactor builds a redactor; secrets registered here and via AddValues
// are replaced wherever they appear.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{seen: make(map[string]struct{})}
	r.AddValues(secrets...)
	return r
}

// AddValues registers secret literals. Values shorter than six bytes are
// skipped so common words never get scrubbed out of ordinary messages.
func (r *Redactor) AddValues(values ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if len(trimmed) < 6 {
			continue
		}
		if _, ok := r.seen[trimmed]; ok {
			continue
		}
		r.seen[trimmed] = struct{}{}
		r.secrets = append(r.secrets, trimmed)
		changed = true
	}
	if changed {
		sort.Slice(r.secrets, func(i, j int) bool {
			return len(r.secrets[i]) > len(r.secrets[j])
		})
	}
}

// Redact replaces every registered secret in s.
func (r *Redactor) Redact(s string) string {
	if r == nil || s == "" {
		return s
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redactedValue)
	}
	return s
}

// Hook is a logrus hook that scrubs every entry before it is formatted:
// sensitive field names are blanked outright, and string values and the
// message are run through the secret-literal set.
type Hook struct {
	redactor *Redactor
}

// NewHook wraps a redactor for installation with logger.AddHook.
func NewHook(r *Redactor) *Hook {
	return &Hook{redactor: r}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	for key, value := range entry.Data {
		if _, sensitive := sensitiveFields[strings.ToLower(key)]; sensitive {
			entry.Data[key] = redactedValue
			continue
		}
		if s, ok := value.(string); ok {
			entry.Data[key] = h.redactor.Redact(s)
		}
	}
	entry.Message = h.redactor.Redact(entry.Message)
	return nil
}

// Printable reports whether b is safe to echo into a log line. Raw TLS
// handshakes and other binary noise arriving on a text port must be
// summarized, not printed.
func Printable(b []byte) bool {
	for _, r := range string(b) {
		if r == unicode.ReplacementChar {
			return false
		}
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if r < 0x20 || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
