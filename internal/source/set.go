package source

import (
	"net/http"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// Set resolves an index URL + source kind to the Adapter that should
// service it, caching one Registry/Foreign client per distinct index
// URL (they carry no per-call state, so sharing is safe and avoids
// rebuilding an http.Client per dependency edge).
type Set struct {
	Client *http.Client
	Token  string

	Git       *Git
	Workspace *Workspace
	Path      *Path

	registries map[string]*Registry
	foreigns   map[string]*Foreign
}

func NewSet(client *http.Client, token string, git *Git, ws *Workspace) *Set {
	if client == nil {
		client = http.DefaultClient
	}
	return &Set{
		Client:     client,
		Token:      token,
		Git:        git,
		Workspace:  ws,
		Path:       NewPath(),
		registries: map[string]*Registry{},
		foreigns:   map[string]*Foreign{},
	}
}

// For returns the Adapter that services the given source kind + index
// URL combination.
func (s *Set) For(kind manifest.SourceKind, indexURL string) Adapter {
	switch kind {
	case manifest.SourceRegistry:
		if a, ok := s.registries[indexURL]; ok {
			return a
		}
		a := NewRegistry(indexURL, s.Client, s.Token)
		s.registries[indexURL] = a
		return a
	case manifest.SourceForeign:
		if a, ok := s.foreigns[indexURL]; ok {
			return a
		}
		a := NewForeign(indexURL, s.Client)
		s.foreigns[indexURL] = a
		return a
	case manifest.SourceGit:
		return s.Git
	case manifest.SourceWorkspace:
		return s.Workspace
	case manifest.SourcePath:
		return s.Path
	}
	return nil
}
