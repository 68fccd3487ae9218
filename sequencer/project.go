package sequencer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"gopkg.in/yaml.v3"

	"go-stepseq/debug"
)

const (
	saveTimeFormat   = "2006-01-02_15-04-05"
	autosaveFilename = "autosave.json"
)

// SaveInfo represents a saved project file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Store keeps projects as folders of timestamped saves.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore uses dir as the projects root.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// DefaultStore uses ~/.config/go-stepseq/projects
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(home, ".config", "go-stepseq", "projects")), nil
}

// Dir returns the projects root.
func (s *Store) Dir() string { return s.dir }

// ProjectDir returns the path to a specific project
func (s *Store) ProjectDir(projectName string) string {
	return filepath.Join(s.dir, sanitizeFilename(projectName))
}

// ListProjects returns all project folder names
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// ListSaves returns timestamped saves for a project, newest first
func (s *Store) ListSaves(projectName string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(s.ProjectDir(projectName))
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if info, ok := parseSaveName(entry.Name()); ok {
			saves = append(saves, info)
		}
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// parseSaveName reads 2006-01-02_15-04-05[_name].json
func parseSaveName(filename string) (SaveInfo, bool) {
	base := strings.TrimSuffix(filename, ".json")
	if len(base) < len(saveTimeFormat) {
		return SaveInfo{}, false
	}
	ts, err := time.Parse(saveTimeFormat, base[:len(saveTimeFormat)])
	if err != nil {
		return SaveInfo{}, false
	}
	name := ""
	if len(base) > len(saveTimeFormat)+1 && base[len(saveTimeFormat)] == '_' {
		name = base[len(saveTimeFormat)+1:]
	}
	return SaveInfo{Filename: filename, Name: name, Timestamp: ts}, true
}

// Save writes data as a new timestamped save and returns its filename.
func (s *Store) Save(projectName, label string, data ProjectData) (string, error) {
	if projectName == "" {
		projectName = "untitled"
	}
	dir := s.ProjectDir(projectName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}

	filename := s.now().Format(saveTimeFormat)
	if label != "" {
		filename += "_" + sanitizeFilename(label)
	}
	filename += ".json"

	if err := os.WriteFile(filepath.Join(dir, filename), buf, 0644); err != nil {
		return "", err
	}
	debug.Log("project", "saved %s/%s", projectName, filename)
	return filename, nil
}

// Autosave overwrites the project's single autosave slot.
func (s *Store) Autosave(projectName string, data ProjectData) error {
	dir := s.ProjectDir(projectName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, autosaveFilename), buf, 0644)
}

// Load reads a specific save. An empty filename picks the newest save, then
// the autosave slot.
func (s *Store) Load(projectName, filename string) (ProjectData, error) {
	if filename == "" {
		saves, err := s.ListSaves(projectName)
		if err != nil {
			return ProjectData{}, err
		}
		if len(saves) > 0 {
			filename = saves[0].Filename
		} else {
			filename = autosaveFilename
		}
	}

	path := filepath.Join(s.ProjectDir(projectName), filename)
	data, err := LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectData{}, fmt.Errorf("no saves found in project %s", projectName)
		}
		return ProjectData{}, err
	}
	debug.Log("project", "loaded %s/%s", projectName, filename)
	return data, nil
}

// CreateProject creates a new empty project folder
func (s *Store) CreateProject(name string) error {
	return os.MkdirAll(s.ProjectDir(name), 0755)
}

// DeleteSave deletes a specific save file
func (s *Store) DeleteSave(projectName, filename string) error {
	return os.Remove(filepath.Join(s.ProjectDir(projectName), filepath.Base(filename)))
}

// RenameSave changes the name part of a save, keeping its timestamp.
func (s *Store) RenameSave(projectName, oldFilename, newName string) (string, error) {
	info, ok := parseSaveName(oldFilename)
	if !ok {
		return "", fmt.Errorf("invalid save filename %q", oldFilename)
	}

	newFilename := info.Timestamp.Format(saveTimeFormat)
	if newName != "" {
		newFilename += "_" + sanitizeFilename(newName)
	}
	newFilename += ".json"

	dir := s.ProjectDir(projectName)
	if err := os.Rename(filepath.Join(dir, oldFilename), filepath.Join(dir, newFilename)); err != nil {
		return "", err
	}
	return newFilename, nil
}

// DeleteProject deletes entire project folder
func (s *Store) DeleteProject(name string) error {
	return os.RemoveAll(s.ProjectDir(name))
}

// RenameProject renames a project folder
func (s *Store) RenameProject(oldName, newName string) error {
	return os.Rename(s.ProjectDir(oldName), s.ProjectDir(newName))
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	r := strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	)
	return r.Replace(name)
}

// LoadFile reads a project from a JSON or YAML file.
func LoadFile(path string) (ProjectData, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return ProjectData{}, err
	}
	data, err := DecodeProject(buf)
	if err != nil {
		return ProjectData{}, fault.Wrap(err, fmsg.With(path))
	}
	return data, nil
}

// WriteFile writes a project as YAML for .yml/.yaml paths and JSON otherwise.
func WriteFile(path string, data ProjectData) error {
	var (
		buf []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		buf, err = EncodeProjectYAML(data)
	default:
		buf, err = json.MarshalIndent(data, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

// DecodeProject accepts JSON and falls back to YAML.
func DecodeProject(buf []byte) (ProjectData, error) {
	var data ProjectData
	jsonErr := json.Unmarshal(buf, &data)
	if jsonErr == nil {
		return data, nil
	}

	data = ProjectData{}
	yamlErr := yaml.Unmarshal(buf, &data)
	if yamlErr == nil {
		return data, nil
	}
	return ProjectData{}, configError(ErrMalformedData, "could not be parsed as .json (%v) or .yml (%v)", jsonErr, yamlErr)
}

// EncodeProjectYAML renders a project as YAML.
func EncodeProjectYAML(data ProjectData) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
