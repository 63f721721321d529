package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"syndicate/internal/logging"
)

const pollInterval = 250 * time.Millisecond

// Filter narrows JSON log lines. Zero fields match everything. Lines that are
// not JSON only pass an empty filter.
type Filter struct {
	QueueID       int64
	CorrelationID string
	MinLevel      string
}

func (f Filter) empty() bool {
	return f.QueueID == 0 && f.CorrelationID == "" && f.MinLevel == ""
}

// TailOptions controls a read. A negative Offset means "the last Limit lines".
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads the log at path. A missing file yields no lines and offset zero.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	offset := opts.Offset
	if offset < 0 {
		lines, end, err := lastLines(path, opts.Limit, opts.Filter)
		if err != nil {
			return result, err
		}
		if len(lines) > 0 || !opts.Follow {
			return TailResult{Lines: lines, Offset: end}, nil
		}
		offset = end
	} else if offset > info.Size() {
		offset = info.Size()
	}

	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		lines, next, err := linesFrom(path, offset, opts.Filter)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		offset = next
		if len(lines) > 0 || !opts.Follow || !time.Now().Before(deadline) {
			return TailResult{Lines: limitLines(lines, opts.Limit), Offset: offset}, nil
		}
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func lastLines(path string, limit int, filter Filter) ([]string, int64, error) {
	lines, end, err := linesFrom(path, 0, filter)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		return nil, end, nil
	}
	return limitLines(lines, limit), end, nil
}

func limitLines(lines []string, limit int) []string {
	if limit > 0 && len(lines) > limit {
		return lines[len(lines)-limit:]
	}
	return lines
}

// linesFrom reads complete lines after offset. A trailing partial line is left
// for the next read.
func linesFrom(path string, offset int64, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		raw, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(raw))
		line := strings.TrimRight(raw, "\r\n")
		if filter.matches(line) {
			lines = append(lines, line)
		}
	}
	return lines, offset, nil
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

func (f Filter) matches(line string) bool {
	if f.empty() {
		return true
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return false
	}
	if f.QueueID != 0 && !sameID(record[logging.FieldQueueID], f.QueueID) {
		return false
	}
	if f.CorrelationID != "" && record[logging.FieldCorrelationID] != f.CorrelationID {
		return false
	}
	if f.MinLevel != "" {
		level, _ := record["level"].(string)
		want, ok := levelRank[strings.ToUpper(f.MinLevel)]
		if have, known := levelRank[strings.ToUpper(level)]; ok && (!known || have < want) {
			return false
		}
	}
	return true
}

func sameID(value any, id int64) bool {
	switch v := value.(type) {
	case float64:
		return int64(v) == id
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		return err == nil && parsed == id
	}
	return false
}
