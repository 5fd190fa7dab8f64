package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const tuiStateFileName = "tui_state.json"

// Store is the local state directory.
type Store struct {
	Dir string
}

// Default returns the store rooted at ConfigDir.
func Default() (Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return Store{}, err
	}
	return Store{Dir: dir}, nil
}

func (s Store) Ensure() error {
	if strings.TrimSpace(s.Dir) == "" {
		return errors.New("store: empty dir")
	}
	return os.MkdirAll(s.Dir, 0o755)
}

// PageState is the filter state of one page, restored on relaunch.
type PageState struct {
	Tag     string `json:"tag,omitempty"`
	Name    string `json:"name,omitempty"`
	Labels  string `json:"labels,omitempty"`
	Iter    string `json:"iter,omitempty"`
	GroupBy string `json:"groupBy,omitempty"`
}

// TUIState stores the last screen for restoring it on relaunch. It is best
// effort: callers tolerate missing or invalid data.
type TUIState struct {
	Version int `json:"version"`

	Project string `json:"project,omitempty"`
	// Page is the kind of the page that was open.
	Page string `json:"page,omitempty"`

	// Pages is keyed by PageKey(project, kind).
	Pages map[string]PageState `json:"pages,omitempty"`
}

func PageKey(project, kind string) string { return project + "/" + kind }

func (st *TUIState) PageState(project, kind string) (PageState, bool) {
	if st == nil || st.Pages == nil {
		return PageState{}, false
	}
	ps, ok := st.Pages[PageKey(project, kind)]
	return ps, ok
}

func (st *TUIState) SetPageState(project, kind string, ps PageState) {
	if st.Pages == nil {
		st.Pages = map[string]PageState{}
	}
	st.Pages[PageKey(project, kind)] = ps
}

func (s Store) tuiStatePath() string {
	return filepath.Join(s.Dir, tuiStateFileName)
}

func (s Store) LoadTUIState() (*TUIState, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return &TUIState{Version: 1}, nil
	}
	b, err := os.ReadFile(s.tuiStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &TUIState{Version: 1}, nil
		}
		return nil, err
	}
	var st TUIState
	if err := json.Unmarshal(b, &st); err != nil {
		// Corrupted: treat as missing.
		return &TUIState{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	return &st, nil
}

func (s Store) SaveTUIState(st *TUIState) error {
	if st == nil || strings.TrimSpace(s.Dir) == "" {
		return nil
	}
	if err := s.Ensure(); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(s.Dir, tuiStateFileName+".*.tmp", s.tuiStatePath(), b, 0o644)
}
