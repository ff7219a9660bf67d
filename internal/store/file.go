package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/telemetry"

	random "github.com/mazen160/go-random"
)

const (
	journalName  = ".journal.json"
	stagedMarker = ".tmp-"
)

const (
	report_file_store_recover = "file_store.recover"
	report_file_store_cleanup = "file_store.cleanup"
)

type rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type journal struct {
	Renames []rename `json:"renames"`
}

// FileStore keeps one json file per document in a directory. Multi
// document commits write a journal of pending renames first, a journal
// left by a crash is rolled forward the next time the store is opened.
type FileStore struct {
	dir string
	tel telemetry.API
}

func OpenFileStore(dir string, tel telemetry.API) (*FileStore, error) {
	assert.NotEmptyStr(dir)
	assert.NotNil(tel)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, err
	}
	s := &FileStore{dir: dir, tel: telemetry.NewScopedAPI("store", tel)}
	err = s.recover()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return body, err
}

func writeSynced(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(body)
	if err == nil {
		err = f.Sync()
	}
	closeErr := f.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (s *FileStore) PutMany(ctx context.Context, docs map[string][]byte) error {
	if len(docs) == 0 {
		return nil
	}
	suffix, err := random.String(10)
	if err != nil {
		return err
	}

	var renames []rename
	cleanup := func() {
		for _, r := range renames {
			os.Remove(r.From)
		}
	}

	for _, name := range sortedNames(docs) {
		target, err := s.path(name)
		if err != nil {
			cleanup()
			return err
		}
		staged := target + stagedMarker + suffix
		renames = append(renames, rename{From: staged, To: target})
		err = writeSynced(staged, docs[name])
		if err != nil {
			cleanup()
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	if ctx.Err() != nil {
		cleanup()
		return ctx.Err()
	}

	if len(renames) == 1 {
		return os.Rename(renames[0].From, renames[0].To)
	}

	encoded, err := json.Marshal(journal{Renames: renames})
	if err != nil {
		cleanup()
		return err
	}
	journalPath := filepath.Join(s.dir, journalName)
	stagedJournal := journalPath + stagedMarker + suffix
	err = writeSynced(stagedJournal, encoded)
	if err != nil {
		cleanup()
		return fmt.Errorf("write journal: %w", err)
	}
	// the commit point, once the journal exists the renames will happen
	err = os.Rename(stagedJournal, journalPath)
	if err != nil {
		os.Remove(stagedJournal)
		cleanup()
		return fmt.Errorf("commit journal: %w", err)
	}

	return s.applyJournal(journal{Renames: renames})
}

func (s *FileStore) applyJournal(j journal) error {
	for _, r := range j.Renames {
		err := os.Rename(r.From, r.To)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("apply journal: %w", err)
		}
	}
	return os.Remove(filepath.Join(s.dir, journalName))
}

// recover rolls a committed journal forward and removes staged files of
// commits that never reached their commit point.
func (s *FileStore) recover() error {
	body, err := os.ReadFile(filepath.Join(s.dir, journalName))
	switch {
	case err == nil:
		var j journal
		err = json.Unmarshal(body, &j)
		if err != nil {
			s.tel.ReportBroken(report_file_store_recover, err)
			err = os.Remove(filepath.Join(s.dir, journalName))
			if err != nil {
				return err
			}
			break
		}
		s.tel.ReportWarning(report_file_store_recover, len(j.Renames))
		err = s.applyJournal(j)
		if err != nil {
			return err
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), stagedMarker) {
			continue
		}
		err = os.Remove(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.tel.ReportWarning(report_file_store_cleanup, e.Name(), err)
		}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
