package pulsedb

import (
	"log"
	"os"
)

// Logger is the logging interface used by the appender. Set AppendOpts.Logger
// to plug in your own implementation.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type stdLog struct {
	logger *log.Logger
}

var _ Logger = (*stdLog)(nil)

func (s *stdLog) Infof(format string, v ...interface{}) {
	// The stdlib log package has no levels. To keep the default appender
	// quiet, info messages are dropped; plug in your own Logger to see them.
}

func (s *stdLog) Warnf(format string, v ...interface{}) {
	s.logger.Printf("WARN "+format, v...)
}

func (s *stdLog) Errorf(format string, v ...interface{}) {
	s.logger.Printf("ERROR "+format, v...)
}

func newStdLog() Logger {
	return &stdLog{logger: log.New(os.Stderr, "pulsedb: ", log.LstdFlags)}
}
