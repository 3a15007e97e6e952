package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
	"fatal":   "FATAL",
}

var statusNames = map[string]string{
	"ok":     "ok",
	"fail":   "fail",
	"skip":   "skip",
	"retry":  "retry",
	"denied": "denied",
}

var outcomeNames = map[string]string{
	"ok":      "ok",
	"fail":    "fail",
	"partial": "partial",
	"denied":  "denied",
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases known statuses and passes unknown ones through.
func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := statusNames[status]; ok {
		return mapped
	}
	return status
}

func normalizeOutcome(outcome string) (string, bool) {
	val, ok := outcomeNames[strings.ToLower(strings.TrimSpace(outcome))]
	return val, ok
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
	"step",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"identity",
	"created",
	"broadcast_id",
	"recipients",
	"sent",
	"failed",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"driver",
	"path",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempts",
}
