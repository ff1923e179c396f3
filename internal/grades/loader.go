package grades

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Profile describes one misting grade the peripheral firmware understands.
// Grade ids double as the grade field of the activation payload.
type Profile struct {
	ID             string `json:"id" yaml:"id"`
	Label          string `json:"label" yaml:"label"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	Intensity      int    `json:"intensity" yaml:"intensity"`
	MistSecondsOn  int    `json:"mist_seconds_on,omitempty" yaml:"mist_seconds_on,omitempty"`
	MistSecondsOff int    `json:"mist_seconds_off,omitempty" yaml:"mist_seconds_off,omitempty"`
}

// ProfileLoader reads grade profiles from YAML files, validates them against
// the embedded schema, and caches them by id.
type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load resolves a grade id to its profile, searching each configured path for
// <id>.yaml.
func (l *ProfileLoader) Load(id string) (*Profile, error) {
	if cached, ok := l.cache.Load(id); ok {
		return cached.(*Profile), nil
	}

	var data []byte
	var err error
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, id+".yaml")
		data, err = os.ReadFile(fullPath)
		if err == nil {
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("grade profile not found: %s (searched in: %v)", id, l.searchPaths)
	}

	profile, err := l.parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid grade profile %s: %w", foundPath, err)
	}
	if profile.ID != id {
		return nil, fmt.Errorf("grade profile %s declares id %q", foundPath, profile.ID)
	}

	l.cache.Store(id, profile)
	return profile, nil
}

// LoadAll reads every profile from the search paths, earlier paths shadowing
// later ones, sorted by grade number.
func (l *ProfileLoader) LoadAll() ([]*Profile, error) {
	seen := make(map[string]*Profile)

	for _, searchPath := range l.searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read grade directory %s: %w", searchPath, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), ".yaml")
			if _, ok := seen[id]; ok {
				continue
			}
			profile, err := l.Load(id)
			if err != nil {
				return nil, err
			}
			seen[id] = profile
		}
	}

	profiles := make([]*Profile, 0, len(seen))
	for _, p := range seen {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return gradeNumber(profiles[i].ID) < gradeNumber(profiles[j].ID)
	})
	return profiles, nil
}

// ValidGrades returns the sorted ids of every loadable profile.
func (l *ProfileLoader) ValidGrades() ([]string, error) {
	profiles, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	return ids, nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

// parse converts YAML to JSON so the shared schema validator applies, then
// decodes the profile.
func (l *ProfileLoader) parse(data []byte) (*Profile, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode profile: %w", err)
	}

	if err := l.validator.ValidateProfile(jsonData); err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(jsonData, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

func gradeNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "G"))
	if err != nil {
		return 0
	}
	return n
}
