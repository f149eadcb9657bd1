package mention

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// cacheCapacity bounds the persisted nickname cache. Inserting past the
// cap evicts the oldest-inserted entry, on disk and in memory.
const cacheCapacity = 100

var digitRun = regexp.MustCompile(`\d+`)

// Cache is an insertion-ordered id→name map persisted as an append-only
// line file of "<id> : <name>" pairs. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	path  string
	names map[string]string
	order []string
}

// OpenCache loads an existing cache file, tolerating comments, blank
// lines, fullwidth colons and malformed lines. A missing file is fine.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{
		path:  path,
		names: make(map[string]string),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("mention: open cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id, name, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		c.insert(id, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mention: read cache: %w", err)
	}
	return c, nil
}

func parseLine(raw string) (id, name string, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	sep := strings.IndexAny(line, ":：")
	if sep == -1 {
		return "", "", false
	}
	left := strings.TrimSpace(line[:sep])
	// Skip past the separator rune (the fullwidth colon is multi-byte).
	_, size := utf8.DecodeRuneInString(line[sep:])
	right := strings.TrimSpace(line[sep+size:])

	id = digitRun.FindString(left)
	if id == "" || right == "" {
		return "", "", false
	}
	return id, right, true
}

// Get returns the cached name for an id.
func (c *Cache) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[id]
	return name, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

// Put records a resolved name. New entries append a line to the cache
// file; when the cap is exceeded the oldest entry's line is pruned.
func (c *Cache) Put(id, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.names[id]; exists {
		c.names[id] = name
		return c.rewrite()
	}

	evicted := c.insert(id, name)
	if evicted {
		return c.rewrite()
	}
	return c.appendLine(id, name)
}

// insert adds an entry in memory, evicting the oldest past capacity.
// Reports whether an eviction happened.
func (c *Cache) insert(id, name string) bool {
	if _, exists := c.names[id]; exists {
		c.names[id] = name
		return false
	}
	c.names[id] = name
	c.order = append(c.order, id)
	if len(c.order) <= cacheCapacity {
		return false
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.names, oldest)
	return true
}

func (c *Cache) appendLine(id, name string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("mention: cache dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("mention: append cache: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s : %s\n", id, name); err != nil {
		return fmt.Errorf("mention: append cache: %w", err)
	}
	return nil
}

// rewrite persists the full in-memory state atomically, dropping any
// pruned lines. Same temp-file-then-rename discipline as session saves.
func (c *Cache) rewrite() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("mention: cache dir: %w", err)
	}

	var b strings.Builder
	for _, id := range c.order {
		fmt.Fprintf(&b, "%s : %s\n", id, c.names[id])
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), "nicknames-*.tmp")
	if err != nil {
		return fmt.Errorf("mention: rewrite cache: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("mention: rewrite cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mention: rewrite cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("mention: rewrite cache: %w", err)
	}
	cleanup = false
	return nil
}
