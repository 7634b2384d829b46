package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"redscrape/pkg/reddit"
	"redscrape/pkg/validation"
)

// Manager writes scraped data to disk and tracks which posts have
// already been saved so re-runs skip duplicates.
type Manager struct {
	outputDir  string
	savedPosts map[string]bool
	mu         sync.RWMutex
}

// NewManager creates a storage manager rooted at outputDir.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir:  outputDir,
		savedPosts: make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

// scanExistingFiles seeds duplicate detection from files already on
// disk. Post files are named <subreddit>_<id>.json.
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if idx := strings.LastIndex(name, "_"); idx > 0 {
			m.savedPosts[name[idx+1:]] = true
		}
	}
	return nil
}

// IsSaved reports whether a post ID has already been written.
func (m *Manager) IsSaved(postID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.savedPosts[postID]
}

// markSaved records a post ID as written.
func (m *Manager) markSaved(postID string) {
	m.mu.Lock()
	m.savedPosts[postID] = true
	m.mu.Unlock()
}

// writeJSON writes v atomically: to a temp file first, then renamed
// into place so a crash never leaves a truncated file behind.
func (m *Manager) writeJSON(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}

	path := filepath.Join(m.outputDir, filename)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize %s: %w", filename, err)
	}
	return nil
}

// SaveListing writes a page of posts as one JSON file named after the
// source and a timestamp, and returns the path.
func (m *Manager) SaveListing(source string, posts []reddit.Post) (string, error) {
	filename := fmt.Sprintf("%s_%s.json",
		validation.SanitizeFilename(source),
		time.Now().Format("20060102_150405"))
	if err := m.writeJSON(filename, posts); err != nil {
		return "", err
	}
	for _, p := range posts {
		m.markSaved(p.ID)
	}
	return filepath.Join(m.outputDir, filename), nil
}

// SaveThread writes one post with its comment tree and returns the
// path.
func (m *Manager) SaveThread(thread *reddit.Thread) (string, error) {
	filename := fmt.Sprintf("%s_%s.json",
		validation.SanitizeFilename(thread.Post.Subreddit),
		thread.Post.ID)
	if err := m.writeJSON(filename, thread); err != nil {
		return "", err
	}
	m.markSaved(thread.Post.ID)
	return filepath.Join(m.outputDir, filename), nil
}

// csvHeader is the column order for exported listings.
var csvHeader = []string{
	"id", "title", "author", "score", "upvote_ratio", "num_comments",
	"created_utc", "subreddit", "permalink", "url",
}

// SaveListingCSV exports a page of posts as CSV and returns the path.
func (m *Manager) SaveListingCSV(source string, posts []reddit.Post) (string, error) {
	filename := fmt.Sprintf("%s_%s.csv",
		validation.SanitizeFilename(source),
		time.Now().Format("20060102_150405"))
	path := filepath.Join(m.outputDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, p := range posts {
		record := []string{
			p.ID,
			p.Title,
			p.Author,
			strconv.Itoa(p.Score),
			strconv.FormatFloat(p.UpvoteRatio, 'f', 2, 64),
			strconv.Itoa(p.NumComments),
			strconv.FormatFloat(p.CreatedUTC, 'f', 0, 64),
			p.Subreddit,
			p.Permalink,
			p.URL,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	for _, p := range posts {
		m.markSaved(p.ID)
	}
	return path, nil
}

// OutputDir returns the directory this manager writes into.
func (m *Manager) OutputDir() string {
	return m.outputDir
}
