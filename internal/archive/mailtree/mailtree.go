// Package mailtree binds a directory tree of mail files to the archive
// interfaces. Every directory is a folder; every *.eml file is one message
// and every *.mbox file contributes all the messages it holds.
package mailtree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/matheus3301/mailingest/internal/archive"
)

// ErrUnsupported is returned by Open for a path that is neither a
// directory nor a .mbox/.eml file.
var ErrUnsupported = errors.New("unsupported archive path")

// Archive is an opened mail tree.
type Archive struct {
	path   string
	closed bool
}

// Open validates path and returns the archive rooted there. A single .mbox
// or .eml file is accepted as a one-folder archive.
func Open(path string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if !info.IsDir() && !isMailFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	return &Archive{path: path}, nil
}

// Root loads the top-level folder.
func (a *Archive) Root() (archive.Folder, error) {
	if a.closed {
		return nil, errors.New("archive closed")
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		f := &folder{name: strings.TrimSuffix(filepath.Base(a.path), filepath.Ext(a.path))}
		f.loadFile(a.path)
		return f, nil
	}
	return loadFolder(a.path)
}

// Close releases the archive.
func (a *Archive) Close() error {
	a.closed = true
	return nil
}

type entry struct {
	source string
	raw    []byte
	err    error
}

type folder struct {
	name    string
	entries []entry
	subdirs []string
}

func loadFolder(dir string) (*folder, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}
	f := &folder{name: filepath.Base(dir)}
	for _, de := range des {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		p := filepath.Join(dir, de.Name())
		switch {
		case de.IsDir():
			f.subdirs = append(f.subdirs, p)
		case isMailFile(p):
			f.loadFile(p)
		}
	}
	return f, nil
}

// loadFile appends the messages of one file. Read failures become failing
// entries so the walker counts them per message.
func (f *folder) loadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		f.entries = append(f.entries, entry{source: path, err: err})
		return
	}
	if strings.EqualFold(filepath.Ext(path), ".eml") {
		f.entries = append(f.entries, entry{source: path, raw: data})
		return
	}

	r := mboxlib.NewReader(bytes.NewReader(data))
	for idx := 0; ; idx++ {
		src := fmt.Sprintf("%s#%d", path, idx)
		mr, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			f.entries = append(f.entries, entry{source: src, err: err})
			return
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			f.entries = append(f.entries, entry{source: src, err: err})
			return
		}
		f.entries = append(f.entries, entry{source: src, raw: raw})
	}
}

func (f *folder) Name() string     { return f.name }
func (f *folder) NumMessages() int { return len(f.entries) }
func (f *folder) NumFolders() int  { return len(f.subdirs) }

func (f *folder) Message(i int) (archive.Message, error) {
	if i < 0 || i >= len(f.entries) {
		return nil, fmt.Errorf("message index %d out of range", i)
	}
	e := f.entries[i]
	if e.err != nil {
		return nil, fmt.Errorf("%s: %w", e.source, e.err)
	}
	m, err := parse(e.raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.source, err)
	}
	return m, nil
}

func (f *folder) Folder(i int) (archive.Folder, error) {
	if i < 0 || i >= len(f.subdirs) {
		return nil, fmt.Errorf("folder index %d out of range", i)
	}
	return loadFolder(f.subdirs[i])
}

func isMailFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mbox", ".eml":
		return true
	}
	return false
}
