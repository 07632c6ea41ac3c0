// Package audit keeps a rotating JSONL trail of document status changes.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/planboard/core/events"
	"github.com/kilianp07/planboard/core/model"
)

// Entry is one line of the trail.
type Entry struct {
	Time              time.Time `json:"time"`
	DocumentType      string    `json:"document_type"`
	SequenceNumber    int64     `json:"sequence_number"`
	ParticipantDomain string    `json:"participant_domain"`
	ConnectionGroupID string    `json:"connection_group_id"`
	Period            string    `json:"period"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Reason            string    `json:"reason,omitempty"`
}

// Config sets the file location and rotation limits.
type Config struct {
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Log writes entries to a JSONL file with automatic rotation.
type Log struct {
	logger *lumberjack.Logger
	path   string
}

// New creates the log, making sure its directory exists.
func New(cfg Config) (*Log, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Log{logger: lj, path: cfg.Path}, nil
}

// Append writes one status change.
func (l *Log) Append(_ context.Context, ev events.DocumentEvent) error {
	b, err := json.Marshal(Entry{
		Time:              ev.At,
		DocumentType:      ev.Key.Type.String(),
		SequenceNumber:    ev.Key.SequenceNumber,
		ParticipantDomain: ev.Key.ParticipantDomain,
		ConnectionGroupID: ev.ConnectionGroupID,
		Period:            model.Day(ev.Period).Format(time.DateOnly),
		From:              ev.From.String(),
		To:                ev.To.String(),
		Reason:            ev.Reason,
	})
	if err != nil {
		return err
	}
	_, err = l.logger.Write(append(b, '\n'))
	return err
}

// Query returns the entries of one document written within [from, to],
// oldest first. Zero bounds are open. Rotated files are read too; compressed
// backups are not.
func (l *Log) Query(ctx context.Context, key model.DocumentKey, from, to time.Time) ([]Entry, error) {
	ext := filepath.Ext(l.path)
	files, err := filepath.Glob(strings.TrimSuffix(l.path, ext) + "*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var res []Entry
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var e Entry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			if e.DocumentType != key.Type.String() || e.SequenceNumber != key.SequenceNumber || e.ParticipantDomain != key.ParticipantDomain {
				continue
			}
			if !from.IsZero() && e.Time.Before(from) {
				continue
			}
			if !to.IsZero() && e.Time.After(to) {
				continue
			}
			res = append(res, e)
		}
		_ = file.Close()
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Time.Before(res[j].Time) })
	return res, nil
}

// Close closes the underlying writer.
func (l *Log) Close() error {
	return l.logger.Close()
}
