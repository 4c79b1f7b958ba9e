// Package planner decides which manifest files already exist locally and
// which must be fetched.
package planner

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/downloader"
)

// Plan is the outcome of comparing a manifest against a local directory.
type Plan struct {
	// Tasks are the files that must be transferred, in manifest order.
	Tasks data.Tasks
	// Sizes maps the local name of every complete file to its size.
	Sizes map[string]int64
	// Conflicts lists manifest paths whose target is not a regular file.
	Conflicts []string
	// Collisions lists manifest paths whose local name was already taken by
	// an earlier path.
	Collisions []string
	// Sources maps every local name claimed by a manifest path (scheduled,
	// complete or conflicting) to the URL it is fetched from.
	Sources map[string]string
}

// Planner builds transfer plans from the local state of a directory.
type Planner struct {
	fs  afero.Fs
	rep downloader.Reporter
	log *slog.Logger
}

// New returns a Planner reading the local state through fsys.
func New(fsys afero.Fs, rep downloader.Reporter, log *slog.Logger) *Planner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Planner{fs: fsys, rep: downloader.Or(rep), log: log}
}

// Plan walks paths in order and schedules every file that is not complete in
// localDir. The check is local-only: a regular file with a non-zero size is
// complete. Progress is reported once per path.
func (p *Planner) Plan(paths []string, baseURL, localDir string) *Plan {
	plan := &Plan{Sizes: make(map[string]int64), Sources: make(map[string]string)}
	owner := make(map[string]string, len(paths))
	total := len(paths)

	for i, rel := range paths {
		p.planOne(plan, owner, rel, baseURL, localDir)
		p.rep.Report(downloader.Event{
			Type:     downloader.EventPlanProgress,
			Progress: &downloader.Progress{Completed: i + 1, Total: total},
		})
	}

	p.log.Debug("plan computed", "total", total, "to_fetch", len(plan.Tasks), "complete", len(plan.Sizes),
		"conflicts", len(plan.Conflicts), "collisions", len(plan.Collisions))
	return plan
}

func (p *Planner) planOne(plan *Plan, owner map[string]string, rel, baseURL, localDir string) {
	name := data.NameFromPath(rel)
	if prev, ok := owner[name]; ok {
		p.log.Warn("local file name collision, path not scheduled", "path", rel, "name", name, "kept", prev)
		plan.Collisions = append(plan.Collisions, rel)
		return
	}
	owner[name] = rel
	src := baseURL + rel
	plan.Sources[name] = src

	local := filepath.Join(localDir, name)
	fi, err := p.fs.Stat(local)
	switch {
	case err == nil && !fi.Mode().IsRegular():
		p.log.Error("target is not a regular file, remove it to continue syncing", "path", local, "mode", fi.Mode().String())
		plan.Conflicts = append(plan.Conflicts, rel)
		return
	case err == nil && fi.Size() > 0:
		plan.Sizes[name] = fi.Size()
		return
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		// Unreadable entries are fetched again; aria2c surfaces the real
		// problem if it persists.
		p.log.Warn("stat local file", "path", local, "err", err)
	}
	plan.Tasks = append(plan.Tasks, data.Task{URL: src, Name: name, Path: rel})
}

// Existing is Existing over the planner's filesystem.
func (p *Planner) Existing(paths []string, localDir string) []string {
	return Existing(p.fs, paths, localDir)
}

// Existing returns the local names of manifest paths currently present in
// localDir as regular files, in manifest order and without duplicates.
func Existing(fsys afero.Fs, paths []string, localDir string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, rel := range paths {
		name := data.NameFromPath(rel)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		fi, err := fsys.Stat(filepath.Join(localDir, name))
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, name)
	}
	return out
}
