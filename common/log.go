package common

import (
	"io"
	"log"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Testing is set when running tests, it forces colors and timestamps in logs
var Testing = os.Getenv("GWRELAY_TESTING") != ""

// GetFixedPrefixLogger returns a logger with the "p" field set
func GetFixedPrefixLogger(prefix string) *logrus.Entry {
	return logrus.WithField("p", prefix)
}

// AddLogHook adds the hook to the standard logger
func AddLogHook(hook logrus.Hook) {
	logrus.AddHook(hook)
}

// SetLogFormatter sets the formatter of the standard logger
func SetLogFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}

// RedirectStdLog sends everything logged through the standard library logger to logrus
func RedirectStdLog() {
	log.SetFlags(0)
	log.SetOutput(&STDLogProxy{})
}

// SetLogFile makes the standard logger also write to the file, rotating it when it grows past maxSizeMB
func SetLogFile(path string, maxSizeMB int) io.Closer {
	fileLogger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		Compress:   true,
	}

	logrus.SetOutput(io.MultiWriter(os.Stderr, fileLogger))
	return fileLogger
}
