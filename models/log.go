package models

import (
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/boleto_notifier/utils"
)

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelError   LogLevel = "error"
)

// MaxLogEntries bounds the operator log.
const MaxLogEntries = 50

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"type"`
	Message string    `json:"msg"`
	Network bool      `json:"isCORS"`
}

var networkKeywords = []string{"cors", "conexão", "conexao", "rede", "connection", "network"}

func NewLogEntry(level LogLevel, msg string) LogEntry {
	return LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Network: mentionsNetwork(msg),
	}
}

// NewErrorLogEntry builds an error entry; connectivity failures are flagged
// regardless of wording.
func NewErrorLogEntry(msg string, err error) LogEntry {
	e := NewLogEntry(LogLevelError, msg)
	if err != nil && errors.Is(err, utils.ErrConnectivity) {
		e.Network = true
	}
	return e
}

func mentionsNetwork(msg string) bool {
	lower := strings.ToLower(msg)
	for _, k := range networkKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
