package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore persists jobs on disk.
//
// Directory layout:
//
//	<root>/<job_id>/job.json
//	<root>/<job_id>/media/        (runner scratch space for fetched files)
//
// Records are written with a temp file plus rename so a concurrent
// snapshot reader never observes a partial job.json.
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("job store root dir is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create job store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) RootDir() string { return s.root }

// JobDir returns the per-job directory; the runner uses it for media
// scratch space alongside job.json.
func (s *FileStore) JobDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *FileStore) jobPath(id string) string {
	return filepath.Join(s.JobDir(id), "job.json")
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid job id %q", id)
	}
	return nil
}

func (s *FileStore) Put(job *Job) error {
	if job == nil {
		return fmt.Errorf("job record is nil")
	}
	if err := validID(job.ID); err != nil {
		return err
	}

	jobDir := s.JobDir(job.ID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	b, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}
	if err := os.Rename(tmpName, s.jobPath(job.ID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(id string) (*Job, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.jobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job.json: %w", err)
	}

	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("parse job.json for %s: %w", id, err)
	}
	return &job, nil
}

func (s *FileStore) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		j, err := s.Get(entry.Name())
		if err != nil {
			// Skip half-written or foreign directories.
			continue
		}
		out = append(out, j)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStore) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	return os.RemoveAll(s.JobDir(id))
}
