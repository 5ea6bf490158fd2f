package logger

import (
	"io"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
)

// base is shared by every module logger so level and output are set once.
var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return l
}

// Logger is a centralized structured logger
type Logger struct {
	out *logrus.Logger
}

// New creates a new Logger
func New() *Logger {
	return &Logger{out: base}
}

// SetLevel changes the level of all loggers. Unknown levels keep the current one.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	base.SetLevel(lvl)
}

// SetOutput redirects all loggers, mainly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*[0-9a-fA-F-]+\b`)
)

// Anonymize replaces sensitive information in logs (emails, tokens, IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	return s
}

func (l *Logger) entry(module string) *logrus.Entry {
	if module == "" {
		return logrus.NewEntry(l.out)
	}
	return l.out.WithField("module", module)
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.entry(module).Info(Anonymize(msg))
}

func (l *Logger) Debug(module, msg string) {
	l.entry(module).Debug(Anonymize(msg))
}

func (l *Logger) Warn(module, msg string) {
	l.entry(module).Warn(Anonymize(msg))
}

func (l *Logger) Error(module, msg string, err error) {
	e := l.entry(module)
	if err != nil {
		e = e.WithField("error", Anonymize(err.Error()))
	}
	e.Error(Anonymize(msg))
}
