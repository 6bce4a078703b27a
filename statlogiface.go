package harvest

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Statter counts what a harvest does. Names used by the harvester are
// "sols", "files", "observations", "skipped", "retries", and "bytes".
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

type NopStatter struct{}

func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

type NopLogger struct{}

func (NopLogger) Printf(format string, v ...interface{}) {}

func (NopLogger) Debugf(format string, v ...interface{}) {}

func (NopLogger) Warnf(format string, v ...interface{}) {}

// ZapLogger adapts a zap logger to Logger. Printf logs at info level.
type ZapLogger struct {
	*zap.SugaredLogger
	file *os.File
}

func (z ZapLogger) Printf(format string, v ...interface{}) {
	z.Infof(format, v...)
}

// NewZapLogger builds a console logger writing to path, or stderr if path is
// empty. Debug messages are only written when verbose is set.
func NewZapLogger(path string, verbose bool) (ZapLogger, error) {
	out := zapcore.Lock(os.Stderr)
	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return ZapLogger{}, errors.Wrap(err, "opening log file")
		}
		out = zapcore.Lock(f)
	}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), out, level)
	return ZapLogger{SugaredLogger: zap.New(core).Sugar(), file: f}, nil
}

// Close flushes the logger and closes its log file, if it has one.
func (z ZapLogger) Close() error {
	// syncing stderr fails on some terminals
	_ = z.Sync()
	if z.file == nil {
		return nil
	}
	return errors.Wrap(z.file.Close(), "closing log file")
}
