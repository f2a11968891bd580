package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ErrNotAnObject is returned by AppendEvent when obj does not marshal to a
// JSON object.
var ErrNotAnObject = errors.New("event must serialize to a JSON object")

// AppendEvent writes one NDJSON line to path,
// attaching a wall-clock ISO timestamp under "at" when absent. The file is
// opened in append mode so concurrent writers never interleave partial
// lines (a single write() of a line buffer is atomic up to PIPE_BUF on the
// platforms this targets).
func AppendEvent(path string, obj map[string]interface{}) error {
	if obj == nil {
		return ErrNotAnObject
	}
	if err := MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	if _, ok := obj["at"]; !ok {
		obj["at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	line, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadEvents reads every well-formed JSON object line from path. Blank
// lines are skipped; unparsable lines are logged and skipped rather than
// aborting the read.
func ReadEvents(path string) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(line, &obj); err != nil {
			log.Printf("store: skipping unparsable event line: %v", err)
			continue
		}
		out = append(out, obj)
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func bytesTrimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// Event tag constants.
const (
	EventRunStarted         = "RUN_STARTED"
	EventPromptBuilt        = "PROMPT_BUILT"
	EventEngineCallStarted  = "ENGINE_CALL_STARTED"
	EventEngineCallCompleted = "ENGINE_CALL_COMPLETED"
	EventRunFinished        = "RUN_FINISHED"
	EventRunFailed          = "RUN_FAILED"
	EventRecoveryDetected   = "RECOVERY_DETECTED"
	EventStateUpdated       = "STATE_UPDATED"
)

// NewEvent is the factory helper every canonical event goes through: it
// sets the tag field "t" and merges in fields.
func NewEvent(tag string, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["t"] = tag
	return out
}
