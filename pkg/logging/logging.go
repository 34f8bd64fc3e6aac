package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New создаёт logrus-логгер: JSON в production, текст в остальных окружениях
func New(level string, production bool) (*logrus.Logger, error) {
	return NewWithOutput(os.Stdout, level, production)
}

// NewWithOutput работает как New, но с произвольным приёмником вывода
func NewWithOutput(out io.Writer, level string, production bool) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	if production {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

// MigrateLogger адаптирует logrus к интерфейсу migrate.Logger
type MigrateLogger struct {
	log     logrus.FieldLogger
	verbose bool
}

// NewMigrateLogger создаёт адаптер; verbose включает подробный вывод migrate
func NewMigrateLogger(log logrus.FieldLogger, verbose bool) *MigrateLogger {
	return &MigrateLogger{log: log, verbose: verbose}
}

func (m *MigrateLogger) Printf(format string, v ...interface{}) {
	m.log.Info(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

func (m *MigrateLogger) Verbose() bool {
	return m.verbose
}
