// Package logger 初始化全局 zerolog 日志。
package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var once sync.Once

// Init 设置全局日志级别，并把 log.Logger 配置为带调用位置的控制台输出。
// 只有第一次调用生效。
func Init(appName, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	once.Do(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = New(os.Stderr, appName)
		log.Debug().Str("level", lvl.String()).Msg("logger initialized")
	})
	return nil
}

// New 创建一个写到 w 的控制台日志记录器。
func New(w io.Writer, appName string) zerolog.Logger {
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		parts := strings.Split(file, "/")
		return parts[len(parts)-1] + ":" + strconv.Itoa(line)
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "02-01-2006 15:04:05.000",
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("%-6s", i))
		},
	}
	return zerolog.New(out).With().Timestamp().Caller().Str("app", appName).Logger()
}

// ParseLevel 解析日志级别（大小写不敏感），空字符串默认为 WARN。
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "":
		return zerolog.WarnLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("logger: incorrect log level %q", level)
}
