package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"libris/pkg/bench"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type resultsFile struct {
	Metadata Metadata       `json:"metadata"`
	Entries  []bench.Result `json:"entries"`
}

// JSONStore keeps results in a single JSON document that is replaced atomically.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStore(dir, file string) *JSONStore {
	if file == "" {
		file = "results.json"
	}
	return &JSONStore{path: filepath.Join(dir, file)}
}

func (s *JSONStore) Path() string {
	return s.path
}

// Load returns the stored document. A missing file is empty, not an error;
// an unreadable one yields ErrCorruptResults.
func (s *JSONStore) Load() (Metadata, []bench.Result, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, nil, nil
	}
	if err != nil {
		return Metadata{}, nil, err
	}
	var doc resultsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %s: %v", ErrCorruptResults, s.path, err)
	}
	return doc.Metadata, doc.Entries, nil
}

// Save merges rep into the file. A prior file that cannot be parsed is moved
// to <path>.bak before the new document is written.
func (s *JSONStore) Save(_ context.Context, rep *bench.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	_, prior, err := s.Load()
	if errors.Is(err, ErrCorruptResults) {
		if err := os.Rename(s.path, s.path+".bak"); err != nil {
			return err
		}
		prior = nil
	} else if err != nil {
		return err
	}

	doc := resultsFile{
		Metadata: metadataOf(rep),
		Entries:  merge(prior, rep.Results),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
