package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// イベントログのファイル名。
const (
	RequestLogFile = "reqLog.log"
	ErrorLogFile   = "errLog.log"
	StoreLogFile   = "mongoErrLog.log"
)

// EventLog は 1 行 1 イベントの形式でログファイルに追記します。
//
// 行の形式: yyyyMMdd\tHH:mm:ss\t<uuid>\t<message>
type EventLog struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewEventLog は dir 配下にファイルを作る EventLog を返します。
// 書き込み失敗は logger に報告され、呼び出し元には返しません。
func NewEventLog(dir string, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Append は message を filename に追記します。
func (l *EventLog) Append(message, filename string) {
	if l == nil {
		return
	}
	if err := l.write(message, filename); err != nil {
		l.logger.Error("eventlog.write_failed", "file", filename, "err", err)
	}
}

func (l *EventLog) write(message, filename string) error {
	line := l.formatLine(message)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(line)
	return err
}

func (l *EventLog) formatLine(message string) string {
	stamp := l.now().Format("20060102\t15:04:05")
	return fmt.Sprintf("%s\t%s\t%s\n", stamp, uuid.NewString(), message)
}
