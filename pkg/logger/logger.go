package logger

import (
	"io"
	"log"
	"os"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelTags = [...]string{"[DEBUG] ", "[INFO] ", "[WARN] ", "[ERROR] ", "[FATAL] "}

const fatalTag = 4

// LevelFromString converte o valor da env LOG_LEVEL em um Level.
func LevelFromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger escreve com prefixo de módulo e nível mínimo. Os escritores por
// nível são montados uma única vez na construção.
type Logger struct {
	prefix string
	level  Level
	sinks  [len(levelTags)]*log.Logger
}

func New(prefix string, level Level) *Logger {
	l := &Logger{prefix: prefix, level: level}
	l.bind(os.Stdout)
	return l
}

func (l *Logger) bind(w io.Writer) {
	for i, tag := range levelTags {
		l.sinks[i] = log.New(w, l.prefix+tag, log.LstdFlags)
	}
}

// SetOutput redireciona todos os níveis para w. Usado em testes.
func (l *Logger) SetOutput(w io.Writer) {
	l.bind(w)
}

func (l *Logger) Debug(args ...interface{}) {
	if l.level <= DEBUG {
		l.sinks[DEBUG].Println(args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= DEBUG {
		l.sinks[DEBUG].Printf(format, args...)
	}
}

func (l *Logger) Info(args ...interface{}) {
	if l.level <= INFO {
		l.sinks[INFO].Println(args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= INFO {
		l.sinks[INFO].Printf(format, args...)
	}
}

func (l *Logger) Warn(args ...interface{}) {
	if l.level <= WARN {
		l.sinks[WARN].Println(args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.level <= WARN {
		l.sinks[WARN].Printf(format, args...)
	}
}

func (l *Logger) Error(args ...interface{}) {
	if l.level <= ERROR {
		l.sinks[ERROR].Println(args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level <= ERROR {
		l.sinks[ERROR].Printf(format, args...)
	}
}

func (l *Logger) Fatal(args ...interface{}) {
	l.sinks[fatalTag].Fatalln(args...)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.sinks[fatalTag].Fatalf(format, args...)
}

// Sub devolve um adaptador waLog.Logger com um submódulo anexado ao prefixo,
// para injetar nos clientes whatsmeow.
func (l *Logger) Sub(module string) waLog.Logger {
	return &WhatsAppLogger{logger: New(l.prefix+"["+module+"] ", l.level)}
}

// WhatsAppLogger adapta Logger para a interface de log do whatsmeow.
type WhatsAppLogger struct {
	logger *Logger
}

func (w *WhatsAppLogger) Debugf(format string, args ...interface{}) {
	w.logger.Debugf(format, args...)
}

func (w *WhatsAppLogger) Infof(format string, args ...interface{}) {
	w.logger.Infof(format, args...)
}

func (w *WhatsAppLogger) Warnf(format string, args ...interface{}) {
	w.logger.Warnf(format, args...)
}

func (w *WhatsAppLogger) Errorf(format string, args ...interface{}) {
	w.logger.Errorf(format, args...)
}

func (w *WhatsAppLogger) Sub(module string) waLog.Logger {
	return w.logger.Sub(module)
}

func NewWhatsAppLogger(prefix string, level Level) waLog.Logger {
	return &WhatsAppLogger{logger: New(prefix, level)}
}
