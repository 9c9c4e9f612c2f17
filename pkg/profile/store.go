package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps questionnaires and profiles as JSON files:
//
//	<root>/questionnaires/<id>.json
//	<root>/profiles/<id>.json
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("profile store root dir is empty")
	}
	for _, sub := range []string{"questionnaires", "profiles"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create profile store dir: %w", err)
		}
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(sub, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(s.root, sub, id+".json"), nil
}

func (s *FileStore) write(sub, id string, v any) error {
	path, err := s.path(sub, id)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", sub, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s record: %w", sub, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s record: %w", sub, err)
	}
	return nil
}

func (s *FileStore) read(sub, id string, v any) error {
	path, err := s.path(sub, id)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s record: %w", sub, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s record %s: %w", sub, id, err)
	}
	return nil
}

func (s *FileStore) PutQuestionnaire(q *Questionnaire) error {
	return s.write("questionnaires", q.ID, q)
}

func (s *FileStore) GetQuestionnaire(id string) (*Questionnaire, error) {
	var q Questionnaire
	if err := s.read("questionnaires", id, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *FileStore) PutProfile(p *Profile) error {
	return s.write("profiles", p.ID, p)
}

func (s *FileStore) GetProfile(id string) (*Profile, error) {
	var p Profile
	if err := s.read("profiles", id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *FileStore) ListProfiles() ([]*Profile, error) {
	dir := filepath.Join(s.root, "profiles")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	out := make([]*Profile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		p, err := s.GetProfile(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
