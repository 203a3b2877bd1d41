package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is the default Logger implementation.
// It emits one JSON object per line when running in a cluster (or when
// CORTEX_LOG_FORMAT=json) and a human-readable text line otherwise.
//
// Configuration priority:
//  1. Explicit parameters (highest)
//  2. Environment variables (CORTEX_LOG_LEVEL, CORTEX_LOG_FORMAT)
//  3. Auto-detection (Kubernetes environment)
//  4. Defaults (lowest)
type ProductionLogger struct {
	level       int
	serviceName string
	format      string
	output      io.Writer
	mu          sync.Mutex
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// NewProductionLogger creates a logger for the given service.
// Empty level or format fall back to environment variables and defaults.
func NewProductionLogger(serviceName, level, format string) *ProductionLogger {
	if level == "" {
		level = os.Getenv("CORTEX_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = os.Getenv("CORTEX_LOG_FORMAT")
	}
	if format == "" {
		if inKubernetes() {
			format = "json"
		} else {
			format = "text"
		}
	}

	lvl, ok := levelNames[strings.ToLower(level)]
	if !ok {
		lvl = levelInfo
	}

	return &ProductionLogger{
		level:       lvl,
		serviceName: serviceName,
		format:      format,
		output:      os.Stdout,
	}
}

// SetOutput redirects log output, primarily for tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, "DEBUG", msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, "INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, "WARN", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, "ERROR", msg, fields)
}

func (l *ProductionLogger) log(lvl int, name, msg string, fields map[string]interface{}) {
	if lvl < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			entry[k] = v
		}
		entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
		entry["level"] = name
		entry["service"] = l.serviceName
		entry["message"] = msg

		data, err := json.Marshal(entry)
		if err != nil {
			// Fields that cannot marshal must not lose the message itself.
			fmt.Fprintf(l.output, `{"level":%q,"service":%q,"message":%q,"marshal_error":%q}`+"\n",
				name, l.serviceName, msg, err.Error())
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(name)
	sb.WriteString("] ")
	sb.WriteString(msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
	}
	fmt.Fprintln(l.output, sb.String())
}

// inKubernetes detects a cluster environment from the standard downward env vars.
func inKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}
