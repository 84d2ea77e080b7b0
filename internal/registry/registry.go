// Package registry loads tracked channels from the line-oriented channels
// file and writes discovered names back into it.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/ylqcxwl/youtube-notifier/internal/atomicio"
	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// Registry reads and rewrites the channels file.
type Registry struct {
	path string
	log  *slog.Logger
}

// New creates a Registry for the file at path.
func New(path string, log *slog.Logger) *Registry {
	return &Registry{path: path, log: log}
}

// Path returns the location of the channels file.
func (r *Registry) Path() string {
	return r.path
}

// Load parses the channels file. Blank lines and comments are skipped;
// malformed lines are logged and skipped.
func (r *Registry) Load() ([]*model.Source, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}

	var sources []*model.Source
	for i, line := range splitLines(string(data)) {
		id, name, err := ParseLine(line)
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			r.log.Warn("skip malformed channel line", "path", r.path, "line", i+1, "error", err)
			continue
		}
		src := &model.Source{ID: id, Name: name, Line: i + 1}
		if name != "" {
			src.Origin = model.OriginConfig
		}
		sources = append(sources, src)
	}

	r.log.Debug("loaded channels", "path", r.path, "count", len(sources))
	return sources, nil
}

// Persist writes names discovered during a run back to the channels file.
// The file is re-read first and only lines that still carry no name are
// rewritten, so manual edits made in the meantime survive. It returns the
// number of rewritten lines.
func (r *Registry) Persist(sources []*model.Source) (int, error) {
	pending := lo.Filter(sources, func(s *model.Source, _ int) bool {
		return s.Discovered && s.Name != ""
	})
	if len(pending) == 0 {
		return 0, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("read channels file: %w", err)
	}
	lines := splitLines(string(data))

	updated := 0
	for _, src := range pending {
		idx := findUnnamed(lines, src)
		if idx < 0 {
			r.log.Debug("channel line already named or gone", "source", src.ID)
			continue
		}
		lines[idx] = FormatLine(src.ID, src.Name) + lineEnding(lines[idx])
		updated++
		r.log.Info("backfilled channel name", "source", src.ID, "name", src.Name, "line", idx+1)
	}
	if updated == 0 {
		return 0, nil
	}

	out := strings.Join(lines, "")
	if err := atomicio.WriteFile(r.path, []byte(out), atomicio.Perm(r.path, 0o644)); err != nil {
		return 0, fmt.Errorf("write channels file: %w", err)
	}
	return updated, nil
}

// findUnnamed returns the index of the line holding src without a name,
// preferring the line the source was loaded from.
func findUnnamed(lines []string, src *model.Source) int {
	unnamed := func(line string) bool {
		id, name, err := ParseLine(line)
		return err == nil && id == src.ID && name == ""
	}
	if i := src.Line - 1; i >= 0 && i < len(lines) && unnamed(lines[i]) {
		return i
	}
	for i, line := range lines {
		if unnamed(line) {
			return i
		}
	}
	return -1
}

var errSkip = errors.New("blank or comment line")

// ParseLine parses "<id>" or "<id> | <name>". Blank and comment lines return
// an error matching errSkip.
func ParseLine(line string) (id, name string, err error) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", "", errSkip
	}

	idPart, namePart, _ := strings.Cut(s, "|")
	id = strings.TrimSpace(idPart)
	name = strings.TrimSpace(namePart)

	if id == "" {
		return "", "", fmt.Errorf("empty channel id in %q", s)
	}
	if strings.ContainsAny(id, " \t") {
		return "", "", fmt.Errorf("channel id %q contains whitespace", id)
	}
	return id, name, nil
}

// FormatLine renders a channels file entry.
func FormatLine(id, name string) string {
	if name == "" {
		return id
	}
	return id + " | " + name
}

// splitLines splits s into lines, keeping each line's terminator.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func lineEnding(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	default:
		return ""
	}
}
