package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// sourceFile — файл может содержать один источник или список под ключом sources.
type sourceFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources читает все *.yaml/*.yml из папки. Имя источника по умолчанию — имя файла,
// ID — детерминированный UUID от имени.
func LoadSources(dir string) (map[string]Source, error) {
	result := make(map[string]Source)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		srcs, err := parseSources(data, strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, s := range srcs {
			if _, dup := result[s.ID]; dup {
				return nil, fmt.Errorf("%s: duplicate source id %s", name, s.ID)
			}
			result[s.ID] = s
		}
	}
	return result, nil
}

func parseSources(data []byte, fallbackName string) ([]Source, error) {
	var multi sourceFile
	if err := yaml.Unmarshal(data, &multi); err != nil {
		return nil, err
	}
	list := multi.Sources
	if len(list) == 0 {
		var one Source
		if err := yaml.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		if one.Name == "" {
			one.Name = fallbackName
		}
		list = []Source{one}
	}
	for i := range list {
		s := &list[i]
		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if err := s.normalize(); err != nil {
			return nil, err
		}
		if s.ID == "" {
			s.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tolatables:source:"+s.Name)).String()
		}
	}
	return list, nil
}

// Sorted — источники по имени (для выдачи API).
func Sorted(m map[string]Source) []Source {
	out := make([]Source, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
