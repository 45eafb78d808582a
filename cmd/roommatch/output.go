package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/roommatch/metrics"
	"github.com/rushteam/roommatch/recommend"
)

// 状态行输出到 stderr，结果（JSON）输出到命令的 stdout，便于管道处理。
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func paint(code, text string) string {
	if noColor || code == "" {
		return text
	}
	return code + text + ansiReset
}

func status(code, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(code, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { status(ansiGreen, "✓", format, args...) }

func printError(format string, args ...any) { status(ansiRed, "✗", format, args...) }

// pathColor 按生成路径区分颜色：短路黄色，混合绿色，只读缓存青色。
func pathColor(path string) string {
	switch path {
	case metrics.PathShortCircuit:
		return ansiYellow
	case metrics.PathBlended:
		return ansiGreen
	case metrics.PathCheck:
		return ansiCyan
	}
	return ""
}

// cardsSummary 是一次推荐结果的单行摘要。
func cardsSummary(userID int64, rec *recommend.Recommendations) string {
	line := fmt.Sprintf("user %d: %d cards via %s", userID, len(rec.IDs), paint(pathColor(rec.Path), rec.Path))
	if rec.RunID != "" {
		line += " (run " + rec.RunID + ")"
	}
	return line
}

// printCards 在 stderr 打印摘要，再把完整结果以 JSON 写到 w。
func printCards(w io.Writer, userID int64, rec *recommend.Recommendations) error {
	fmt.Fprintln(os.Stderr, cardsSummary(userID, rec))
	return printJSON(w, rec)
}

// printJSON 把结果以缩进 JSON 写到 w（命令的标准输出）。
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
