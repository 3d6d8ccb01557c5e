// Package zaplogger is the process-wide structured logger.
// Entries go to stdout and, once InitLogger is called, to the _app_logs table.
package zaplogger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const timeLayout = "2006-01-02T15:04:05.999-0700"

var (
	log   *zap.Logger
	level = zap.NewAtomicLevelAt(zap.DebugLevel)
)

// Fields are the structured key/values attached to one entry
type Fields map[string]interface{}

// LogModel is one persisted log entry
type LogModel struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	Level     string    `gorm:"index"`
	Caller    string
	Message   string
	Fields    string // JSON of the non-standard keys
}

func (LogModel) TableName() string {
	return "_app_logs"
}

// DbWriter is a zapcore.WriteSyncer that inserts JSON-encoded entries through gorm
type DbWriter struct {
	db *gorm.DB
}

type logLine struct {
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
	Caller    string `json:"caller"`
	Message   string `json:"message"`
}

func (w *DbWriter) Write(p []byte) (int, error) {
	var line logLine
	if err := json.Unmarshal(p, &line); err != nil {
		return 0, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(p, &raw); err != nil {
		return 0, err
	}
	for _, k := range []string{"level", "timestamp", "caller", "message"} {
		delete(raw, k)
	}
	extra, err := json.Marshal(raw)
	if err != nil {
		return 0, err
	}
	ts, err := time.Parse(timeLayout, line.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	rec := LogModel{
		Timestamp: ts,
		Level:     line.Level,
		Caller:    line.Caller,
		Message:   line.Message,
		Fields:    string(extra),
	}
	if err := w.db.Create(&rec).Error; err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *DbWriter) Sync() error {
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "timestamp",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
}

func init() {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(os.Stdout), level)
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// InitLogger tees the console output into the database
func InitLogger(db *gorm.DB) error {
	if err := db.AutoMigrate(&LogModel{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %v", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(&DbWriter{db: db}), level),
	)
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

// SetLogLevel changes the level of every core; unknown names fall back to info
func SetLogLevel(name string) {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		l = zapcore.InfoLevel
	}
	level.SetLevel(l)
}

func Info(msg string, fields ...Fields) {
	log.Info(msg, zapFields(fields)...)
}

func Debug(msg string, fields ...Fields) {
	log.Debug(msg, zapFields(fields)...)
}

func Warn(msg string, fields ...Fields) {
	log.Warn(msg, zapFields(fields)...)
}

func Error(msg string, fields ...Fields) {
	log.Error(msg, zapFields(fields)...)
}

// Fatal logs and exits the program
func Fatal(msg string, fields ...Fields) {
	log.Fatal(msg, zapFields(fields)...)
}

// WithFields returns a child logger carrying fields on every entry
func WithFields(fields Fields) *zap.Logger {
	return log.With(zapFields([]Fields{fields})...)
}

// TimeTrack logs the time taken since start
func TimeTrack(start time.Time, name string) {
	elapsed := time.Since(start)
	Debug(name+" took "+elapsed.String(), Fields{"duration": elapsed})
}

func zapFields(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields[0]))
	for k, v := range fields[0] {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Sync flushes any buffered log entries
func Sync() error {
	return log.Sync()
}
