package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config opciones del logger.
type Config struct {
	Env   string // development -> consola legible; production -> JSON
	Level string // trace, debug, info, warn, error
}

// Logger wrapper sobre zerolog para inyección y consistencia en todo
// el generador. Los subloggers con contexto fijo (corrida, trimestre)
// se crean con ForRun y ForQuarter.
type Logger struct {
	zl zerolog.Logger
}

// New crea el logger estructurado de la corrida. En development usa
// salida legible; en cualquier otro entorno emite JSON.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stdout
	if cfg.Env == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zl := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()

	// Redirigir el logger global de zerolog para librerías que lo usen
	log.Logger = zl

	return &Logger{zl: zl}
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ForRun fija la semilla en todos los eventos: dos corridas con la
// misma semilla deben producir el mismo libro, y el campo permite
// compararlas en los logs.
func (l *Logger) ForRun(seed int64) *Logger {
	return &Logger{zl: l.zl.With().Int64("semilla", seed).Logger()}
}

// ForQuarter devuelve el sublogger del trimestre en curso; el
// alineador emite todos sus eventos a través de él.
func (l *Logger) ForQuarter(label string) *Logger {
	return &Logger{zl: l.zl.With().Str("trimestre", label).Logger()}
}

// Trace, Debug, Info, Warn, Error, Fatal delegados a zerolog.
func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// With crea un sublogger con campos arbitrarios cuando los contextos
// fijos de arriba no alcanzan.
func (l *Logger) With() zerolog.Context { return l.zl.With() }
