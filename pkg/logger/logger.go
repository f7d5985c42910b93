package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel 解析日誌等級，無法辨識時使用 info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Setup 設定全域 zerolog logger，之後各套件直接使用 github.com/rs/zerolog/log
func Setup(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return SetupWriter(out, level)
}

// SetupWriter 與 Setup 相同，但輸出到指定的 writer
func SetupWriter(out io.Writer, level string) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}
