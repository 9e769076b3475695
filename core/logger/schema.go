package logger

import "strings"

// Level names written to the "level" field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// statusValues lists the canonical "status" values; anything else passes through lowercased.
var statusValues = map[string]string{
	"ok":           "ok",
	"success":      "ok",
	"fail":         "fail",
	"failed":       "fail",
	"error":        "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
	"canceled":     "cancelled",
}

// maskedKeys hold user supplied content that must not reach the log sinks verbatim.
var maskedKeys = map[string]struct{}{
	"text":       {},
	"identifier": {},
}

func levelName(level string) string {
	if mapped, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return mapped
	}
	if level == "" {
		return LevelInfo
	}
	return strings.ToUpper(level)
}

func statusName(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := statusValues[status]; ok {
		return mapped
	}
	return status
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"cb_key",
	"duration_ms",
	"messages",
	"kb",
	"from_state",
	"to_state",
	"event_kind",
	"actions",
	"failed",
	"reviewer_id",
	"target_user_id",
	"reviewers",
	"pending_count",
	"job_id",
	"action",
	"endpoint",
	"attempts",
	"backoff_ms",
	"retryable",
	"err_code",
	"err",
	"cause",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"storage",
	"driver",
	"step",
	"files",
}
