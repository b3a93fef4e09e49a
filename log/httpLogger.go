package log

import (
	"github.com/hashicorp/go-retryablehttp"
)

var _ retryablehttp.LeveledLogger = retryableHTTPLogger{}

// Debug gates Info/Debug level retryablehttp logging; Error/Warn always log.
var Debug = false

type retryableHTTPLogger struct{}

func NewRetryableHTTPLogger() retryablehttp.LeveledLogger {
	return retryableHTTPLogger{}
}

func (r retryableHTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	LogNoRequestID(msg, keysAndValues...)
}

func (r retryableHTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	LogNoRequestID(msg, keysAndValues...)
}

func (r retryableHTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	if Debug {
		LogNoRequestID(msg, keysAndValues...)
	}
}

func (r retryableHTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	if Debug {
		LogNoRequestID(msg, keysAndValues...)
	}
}
