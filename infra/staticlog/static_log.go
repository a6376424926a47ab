package staticlog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 全局静态日志, 各包直接 staticlog.Log.Infof 使用
var Log = logrus.New()

var initOnce sync.Once

func init() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	Log.SetLevel(logrus.InfoLevel)
	Log.SetOutput(os.Stderr)
}

// InitFile 切换到滚动文件输出(lumberjack), 只生效一次
// maxSizeMB: 单文件上限; maxBackups: 保留文件数
func InitFile(path string, maxSizeMB, maxBackups int) {
	initOnce.Do(func() {
		rotate := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		}
		Log.SetOutput(io.MultiWriter(os.Stderr, rotate))
	})
}

// SetLevel 运行时调整日志级别
func SetLevel(lv logrus.Level) {
	Log.SetLevel(lv)
}
