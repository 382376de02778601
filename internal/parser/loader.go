package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/rs/zerolog/log"
)

var ErrNoDocuments = errors.New("no documents found")

// Loader discovers files under a directory and extracts their documents.
type Loader struct {
	dir        string
	extensions map[string]bool
	skipErrors bool
}

func NewLoader(cfg config.SourceConfig) *Loader {
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return &Loader{
		dir:        cfg.Dir,
		extensions: exts,
		skipErrors: cfg.SkipErrors,
	}
}

// Files returns the matching files under the loader's directory, sorted.
func (l *Loader) Files() ([]string, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", l.dir)
	}

	var files []string
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if l.extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Load parses every matching file. It fails with ErrNoDocuments when nothing
// with text was found.
func (l *Loader) Load(ctx context.Context) ([]models.Document, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileDocs, err := ParseFile(file)
		if err != nil {
			if l.skipErrors {
				log.Warn().Err(err).Str("file", file).Msg("Skipping unreadable file")
				continue
			}
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		log.Debug().Str("file", file).Int("documents", len(fileDocs)).Msg("Parsed file")
		docs = append(docs, fileDocs...)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s (extensions %v)", ErrNoDocuments, l.dir, l.extensionList())
	}
	return docs, nil
}

func (l *Loader) extensionList() []string {
	exts := make([]string, 0, len(l.extensions))
	for ext := range l.extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
