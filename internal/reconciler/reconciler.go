// Package reconciler merges the aria2c session left behind by an interrupted
// run into a freshly computed transfer plan.
package reconciler

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/planner"
)

// Reconciler reads and clears the session file owned by aria2c. It never
// writes to it.
type Reconciler struct {
	fs  afero.Fs
	log *slog.Logger
}

// New creates a Reconciler operating on fsys.
func New(fsys afero.Fs, log *slog.Logger) *Reconciler {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{fs: fsys, log: log}
}

// LoadPendingURLs returns the URLs aria2c had open or pending when it last
// saved its session. Only lines that begin with a non-whitespace character
// and start with "http" count; option lines such as "  out=name" are
// ignored. A missing or unreadable file yields an empty set.
func (r *Reconciler) LoadPendingURLs(sessionFile string) map[string]struct{} {
	urls := make(map[string]struct{})

	f, err := r.fs.Open(sessionFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("read session file", "path", sessionFile, "err", err)
		}
		return urls
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			urls[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		r.log.Warn("read session file", "path", sessionFile, "err", err)
		return make(map[string]struct{})
	}
	return urls
}

// Merge appends a task for every pending URL not already planned and returns
// how many were added. Recovered tasks are appended in URL order.
//
// A recovered URL must not take a local name the plan already claims: names
// blocked by a conflicting entry are added to plan.Conflicts, names owned by
// another URL to plan.Collisions. A recovered URL that is the manifest source
// of a file counted complete resumes that file, which then leaves plan.Sizes.
func (r *Reconciler) Merge(plan *planner.Plan, pending map[string]struct{}) int {
	planned := plan.Tasks.URLs()
	extra := make([]string, 0, len(pending))
	for u := range pending {
		if _, ok := planned[u]; !ok {
			extra = append(extra, u)
		}
	}
	sort.Strings(extra)

	owner := make(map[string]string, len(plan.Sources)+len(plan.Tasks))
	for name, u := range plan.Sources {
		owner[name] = u
	}
	for _, t := range plan.Tasks {
		owner[t.Name] = t.URL
	}
	blocked := make(map[string]struct{}, len(plan.Conflicts))
	for _, p := range plan.Conflicts {
		blocked[data.NameFromPath(p)] = struct{}{}
	}

	added := 0
	for _, u := range extra {
		name := data.NameFromURL(u)
		if _, ok := blocked[name]; ok {
			r.log.Warn("session entry targets a blocked file, not resumed", "url", u, "name", name)
			plan.Conflicts = append(plan.Conflicts, u)
			continue
		}
		if prev, ok := owner[name]; ok && prev != u {
			r.log.Warn("session entry name already taken, not resumed", "url", u, "name", name, "kept", prev)
			plan.Collisions = append(plan.Collisions, u)
			continue
		}
		owner[name] = u
		if _, ok := plan.Sizes[name]; ok {
			r.log.Debug("resuming partial file counted complete", "name", name)
			delete(plan.Sizes, name)
		}
		plan.Tasks = append(plan.Tasks, data.Task{URL: u, Name: name})
		added++
	}
	if added > 0 {
		r.log.Info("resuming transfers from previous session", "count", added)
	}
	return added
}

// Remove deletes the session file. A missing file is not an error.
func (r *Reconciler) Remove(sessionFile string) {
	if err := r.fs.Remove(sessionFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("remove session file", "path", sessionFile, "err", err)
		return
	}
	r.log.Debug("session file cleared", "path", sessionFile)
}
