package data

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrNotFound is returned when a stored run cannot be located by ID.
var ErrNotFound = errors.New("run not found")

// Task is one (source URL, local file name) pair scheduled for transfer.
//
// Path is the manifest-relative path the task was planned from. Tasks
// recovered from an aria2c session file have no manifest path.
type Task struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Tasks is an ordered transfer set.
type Tasks []Task

// Names returns the local file names of the tasks in order.
func (ts Tasks) Names() []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name)
	}
	return out
}

// URLs returns the set of source URLs contained in ts.
func (ts Tasks) URLs() map[string]struct{} {
	out := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		out[t.URL] = struct{}{}
	}
	return out
}

// NameFromPath returns the final segment of a manifest-relative path.
func NameFromPath(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// NameFromURL returns the final path segment of a source URL. Query strings
// and fragments are not part of the name.
func NameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		if b := path.Base(u.Path); b != "/" && b != "." {
			return b
		}
	}
	return NameFromPath(raw)
}
