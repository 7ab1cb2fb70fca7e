// Package shutdown centralizes fatal-exit handling: it writes a crash dump
// before terminating so startup failures leave something to diagnose.
package shutdown

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"historydb/pkg/logger"
)

type crashDump struct {
	Time   string `json:"time"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
	Cmd    string `json:"cmd"`
	Stack  string `json:"stack"`
}

// Abort logs the fatal condition, writes a crash dump under the DB path's
// state dir (or ./crash when no DB path is known), and exits with code 2.
func Abort(contextMsg string, err error, dbPath string) {
	logger.Error("startup_fatal", zap.String("msg", contextMsg), zap.Error(err))
	if path, derr := writeDump(dbPath, contextMsg, err); derr != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", derr)
	} else {
		fmt.Fprintf(os.Stderr, "crash dump written: %s\n", path)
	}
	logger.Sync()
	os.Exit(2)
}

func writeDump(dbPath, reason string, err error) (string, error) {
	dir := "./crash"
	if dbPath != "" {
		dir = filepath.Join(dbPath, "state", "crash")
	}
	if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
		return "", mkErr
	}
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	dump := crashDump{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Reason: reason,
		Cmd:    os.Args[0],
		Stack:  string(buf[:n]),
	}
	if err != nil {
		dump.Error = err.Error()
	}
	b, merr := json.MarshalIndent(dump, "", "  ")
	if merr != nil {
		return "", merr
	}
	path := filepath.Join(dir, "crash-"+time.Now().UTC().Format("20060102T150405Z")+".json")
	if werr := os.WriteFile(path, b, 0o600); werr != nil {
		return "", werr
	}
	return path, nil
}
