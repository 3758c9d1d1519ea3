// Package dropzone watches a configured directory for dropped audio
// files and creates PENDING Job rows for them directly, a second
// ingestion path alongside whatever external upload handler exists.
package dropzone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"secondpass/internal/models"
	"secondpass/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true,
	".aac": true, ".ogg": true, ".wma": true, ".mp4": true,
	".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

// jobCreator is the slice of *store.Store the dropzone needs.
type jobCreator interface {
	CreateJob(ctx context.Context, job *models.Job) error
}

// Service watches Dir and turns every audio file that appears there
// into a PENDING job owned by UserID.
type Service struct {
	dir     string
	userID  string
	store   jobCreator
	watcher *fsnotify.Watcher
}

// NewService constructs a dropzone watcher. It does not touch the
// filesystem or start watching until Start is called.
func NewService(dir, userID string, store jobCreator) *Service {
	return &Service{dir: dir, userID: userID, store: store}
}

// Start creates the watched directory if needed, ingests any files
// already sitting in it, then begins watching for new ones in a
// background goroutine.
func (s *Service) Start() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create dropzone dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	s.watcher = watcher

	if err := s.watcher.Add(s.dir); err != nil {
		s.watcher.Close()
		return fmt.Errorf("watch dropzone dir: %w", err)
	}

	s.ingestExisting()
	go s.watchLoop()

	logger.Info("dropzone watching", "dir", s.dir)
	return nil
}

// Stop closes the watcher, ending watchLoop.
func (s *Service) Stop() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *Service) ingestExisting() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Warn("dropzone initial scan failed", "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s.ingest(filepath.Join(s.dir, e.Name()))
	}
}

func (s *Service) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && !info.IsDir() {
					s.ingest(event.Name)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("dropzone watcher error", "error", err)
		}
	}
}

// ingest waits briefly for the write to settle, then creates a
// PENDING job pointing at the dropped file in place — no copy, unlike
// the upload handler this is out-of-scope for.
func (s *Service) ingest(path string) {
	time.Sleep(500 * time.Millisecond)

	filename := filepath.Base(path)
	if !isAudioFile(filename) {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	job := &models.Job{
		UserID:           s.userID,
		Status:           models.StatusPending,
		SourceAudioPath:  path,
		OriginalFilename: filename,
	}

	if err := s.store.CreateJob(context.Background(), job); err != nil {
		logger.Error("dropzone failed to create job", "file", filename, "error", err)
		return
	}

	logger.Info("dropzone ingested file", "file", filename, "job_id", job.ID)
}

func isAudioFile(filename string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}
