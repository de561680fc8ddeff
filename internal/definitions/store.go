package definitions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// ToolLookup answers whether a tool name is registered; satisfied by the
// tool router.
type ToolLookup interface {
	Has(name string) bool
}

// snapshot is an immutable view of all loaded definitions. Readers hold a
// snapshot pointer and never observe a partially applied reload.
type snapshot struct {
	byName map[string]*schema.WorkflowDefinition
	names  []string
}

// Store loads YAML workflow definitions from a directory and serves them
// through an atomically swapped snapshot.
type Store struct {
	dir    string
	tools  ToolLookup
	logger *slog.Logger

	reloadMu sync.Mutex // serializes reloads; readers are lock-free
	current  atomic.Pointer[snapshot]
}

// NewStore creates a Store over a definitions directory. Call Reload to
// populate it.
func NewStore(dir string, tools ToolLookup, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, tools: tools, logger: logger}
	s.current.Store(&snapshot{byName: map[string]*schema.WorkflowDefinition{}})
	return s
}

// ReloadReport summarizes one reload pass.
type ReloadReport struct {
	Loaded   []string                            `json:"loaded"`
	Rejected map[string]*schema.ValidationResult `json:"rejected,omitempty"`
}

// Reload re-reads every *.yaml/*.yml file under the directory, validates
// each definition, and swaps the snapshot in one atomic store. Files that
// fail validation are rejected and reported; they never displace a valid
// definition mid-swap. An unreadable directory is a hard error and leaves
// the previous snapshot in place.
func (s *Store) Reload(ctx context.Context) (*ReloadReport, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition,
			"read definitions dir %q: %s", s.dir, err.Error()).WithCause(err)
	}

	next := &snapshot{byName: map[string]*schema.WorkflowDefinition{}}
	report := &ReloadReport{Rejected: map[string]*schema.ValidationResult{}}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(s.dir, name)
		def, result := s.loadFile(path)
		if !result.Valid() {
			report.Rejected[name] = result
			s.logger.WarnContext(ctx, "definition rejected",
				slog.String("file", name),
				slog.Int("errors", len(result.Errors)))
			continue
		}
		if _, dup := next.byName[def.Name]; dup {
			dupResult := &schema.ValidationResult{}
			dupResult.AddError("name", schema.ErrCodeConflict,
				fmt.Sprintf("workflow %q already defined by another file", def.Name))
			report.Rejected[name] = dupResult
			continue
		}
		next.byName[def.Name] = def
		next.names = append(next.names, def.Name)
		report.Loaded = append(report.Loaded, def.Name)
	}
	sort.Strings(next.names)

	s.current.Store(next)
	s.logger.InfoContext(ctx, "definitions loaded",
		slog.Int("count", len(next.names)),
		slog.Int("rejected", len(report.Rejected)))
	return report, nil
}

// loadFile parses and validates one definition file.
func (s *Store) loadFile(path string) (*schema.WorkflowDefinition, *schema.ValidationResult) {
	result := &schema.ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		result.AddError("", schema.ErrCodeDefinition, fmt.Sprintf("read file: %v", err))
		return nil, result
	}

	var def schema.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		result.AddError("", schema.ErrCodeDefinition, fmt.Sprintf("parse yaml: %v", err))
		return nil, result
	}

	result.Merge(Validate(&def, s.tools))
	return &def, result
}

// Get retrieves a definition by workflow name.
func (s *Store) Get(name string) (*schema.WorkflowDefinition, error) {
	snap := s.current.Load()
	def, ok := snap.byName[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", name)
	}
	return def, nil
}

// List returns all loaded definitions sorted by name.
func (s *Store) List() []*schema.WorkflowDefinition {
	snap := s.current.Load()
	out := make([]*schema.WorkflowDefinition, 0, len(snap.names))
	for _, name := range snap.names {
		out = append(out, snap.byName[name])
	}
	return out
}

// MatchEvent returns every definition with at least one trigger rule bound
// to the given event name. Rule conditions are evaluated by the engine.
func (s *Store) MatchEvent(event string) []*schema.WorkflowDefinition {
	snap := s.current.Load()
	var out []*schema.WorkflowDefinition
	for _, name := range snap.names {
		def := snap.byName[name]
		for _, rule := range def.Triggers {
			if rule.Event == event {
				out = append(out, def)
				break
			}
		}
	}
	return out
}

// Scheduled returns every definition carrying at least one cron trigger rule.
func (s *Store) Scheduled() []*schema.WorkflowDefinition {
	snap := s.current.Load()
	var out []*schema.WorkflowDefinition
	for _, name := range snap.names {
		def := snap.byName[name]
		for _, rule := range def.Triggers {
			if rule.Schedule != "" {
				out = append(out, def)
				break
			}
		}
	}
	return out
}

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Define validates a new definition, persists it as a YAML file in the
// definitions directory, and reloads the snapshot. An existing workflow of
// the same name is replaced on disk.
func (s *Store) Define(ctx context.Context, def *schema.WorkflowDefinition) error {
	if result := Validate(def, s.tools); !result.Valid() {
		return result.ToError()
	}
	if !fileNamePattern.MatchString(def.Name) {
		return schema.NewErrorf(schema.ErrCodeDefinition,
			"workflow name %q must match %s to be persisted", def.Name, fileNamePattern.String())
	}

	data, err := yaml.Marshal(def)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeDefinition, "encode definition: %s", err.Error()).WithCause(err)
	}

	path := filepath.Join(s.dir, def.Name+".yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return schema.NewErrorf(schema.ErrCodeDefinition, "write definition: %s", err.Error()).WithCause(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return schema.NewErrorf(schema.ErrCodeDefinition, "write definition: %s", err.Error()).WithCause(err)
	}

	_, err = s.Reload(ctx)
	return err
}

// Count returns the number of loaded definitions.
func (s *Store) Count() int {
	return len(s.current.Load().names)
}

// Summary flattens the report's rejections into one line for logs and
// operator-facing responses.
func (r *ReloadReport) Summary() string {
	if len(r.Rejected) == 0 {
		return fmt.Sprintf("%d workflows loaded", len(r.Loaded))
	}
	parts := make([]string, 0, len(r.Rejected))
	for file, result := range r.Rejected {
		msg := "invalid"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		parts = append(parts, fmt.Sprintf("%s: %s", file, msg))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d workflows loaded, %d rejected (%s)",
		len(r.Loaded), len(r.Rejected), strings.Join(parts, "; "))
}
