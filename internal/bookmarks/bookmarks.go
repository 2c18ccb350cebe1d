// Package bookmarks loads and persists the ordered bookmark list. The
// retrieved reference repos carry no TOML library anywhere, so this store
// uses the YAML serialisation library the corpus reaches for when it needs
// ordered, keyed document persistence instead.
package bookmarks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Bookmark is one saved entry. Duplicate URLs are rejected by Add with
// ErrExists so the caller (the Controller) can surface an "open existing"
// signal instead of silently duplicating.
type Bookmark struct {
	Title   string   `yaml:"title"`
	URL     string   `yaml:"url"`
	Tags    []string `yaml:"tags,omitempty"`
	AddedAt time.Time `yaml:"added_at"`
}

type document struct {
	Bookmarks []Bookmark `yaml:"bookmarks"`
}

// ErrExists is returned by Add when the URL is already bookmarked.
var ErrExists = fmt.Errorf("bookmarks: url already bookmarked")

// Store is the in-memory ordered list, backed by a YAML file on disk.
type Store struct {
	path    string
	entries []Bookmark
}

// Open loads path, or starts with an empty list if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bookmarks: read %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bookmarks: parse %s: %w", path, err)
	}
	s.entries = doc.Bookmarks
	return s, nil
}

// All returns the ordered bookmark list.
func (s *Store) All() []Bookmark {
	return append([]Bookmark(nil), s.entries...)
}

// Exists reports whether url is already bookmarked.
func (s *Store) Exists(url string) bool {
	for _, b := range s.entries {
		if b.URL == url {
			return true
		}
	}
	return false
}

// Add appends a bookmark and persists the store. Returns ErrExists without
// modifying anything if the URL is already present.
func (s *Store) Add(title, url string, tags []string) error {
	if s.Exists(url) {
		return ErrExists
	}
	s.entries = append(s.entries, Bookmark{
		Title: title, URL: url, Tags: tags, AddedAt: time.Now().UTC(),
	})
	return s.save()
}

// Remove deletes the bookmark with the given URL, if present, and persists
// the store.
func (s *Store) Remove(url string) error {
	out := s.entries[:0]
	for _, b := range s.entries {
		if b.URL != url {
			out = append(out, b)
		}
	}
	s.entries = out
	return s.save()
}

func (s *Store) save() error {
	doc := document{Bookmarks: s.entries}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("bookmarks: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bookmarks: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".bookmarks-*.tmp")
	if err != nil {
		return fmt.Errorf("bookmarks: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	header := "# Automatically generated by ncgopher.\n"
	if _, err := tmp.WriteString(header); err != nil {
		tmp.Close()
		return fmt.Errorf("bookmarks: write header: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("bookmarks: write body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("bookmarks: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("bookmarks: rename into place: %w", err)
	}
	return nil
}
