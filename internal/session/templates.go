package session

// file: internal/session/templates.go

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dkoosis/preflight/internal/logging"
)

// TemplateInfo describes one available template.
type TemplateInfo struct {
	Name        string
	Path        string
	Description string
	Meta        bool
}

// TemplateCatalog enumerates filesystem templates (directories holding
// <name>/<name>.template) and script templates (*.lua files declaring a
// SessionInit script).
type TemplateCatalog struct {
	UserDir    string
	SystemDirs []string
	MetaDirs   []string
	logger     logging.Logger
}

// NewTemplateCatalog creates a catalog over the given directories.
func NewTemplateCatalog(userDir string, systemDirs, metaDirs []string, logger logging.Logger) *TemplateCatalog {
	return &TemplateCatalog{
		UserDir:    userDir,
		SystemDirs: systemDirs,
		MetaDirs:   metaDirs,
		logger:     logging.OrNoop(logger).WithField("component", "template_catalog"),
	}
}

// Filesystem lists directory templates, user templates first. A name found
// in the user dir hides the same name in system dirs.
func (c *TemplateCatalog) Filesystem() []TemplateInfo {
	var out []TemplateInfo
	seen := map[string]struct{}{}
	dirs := append([]string{c.UserDir}, c.SystemDirs...)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warn("Cannot read template directory.", "dir", dir, "error", err)
			}
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			name := e.Name()
			if _, dup := seen[name]; dup {
				continue
			}
			path := filepath.Join(dir, name)
			if _, err := os.Stat(filepath.Join(path, name+TemplateSuffix)); err != nil {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, TemplateInfo{Name: name, Path: path})
		}
	}
	return out
}

var (
	sessionInitHeader = regexp.MustCompile(`ardour\s*\{[^}]*\[\s*"type"\s*\]\s*=\s*"SessionInit"[^}]*\}`)
	headerName        = regexp.MustCompile(`\bname\s*=\s*"([^"]*)"`)
	headerDescription = regexp.MustCompile(`\bdescription\s*=\s*"([^"]*)"`)
)

// maxScriptHeader bounds how much of each script is read.
const maxScriptHeader = 16 << 10

// Meta lists script templates found in the meta template dirs.
func (c *TemplateCatalog) Meta() []TemplateInfo {
	var out []TemplateInfo
	for _, dir := range c.MetaDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.lua"))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			info, ok := c.readScriptHeader(path)
			if ok {
				out = append(out, info)
			}
		}
	}
	return out
}

func (c *TemplateCatalog) readScriptHeader(path string) (TemplateInfo, bool) {
	// #nosec G304 -- scripts come from configured template dirs.
	f, err := os.Open(path)
	if err != nil {
		c.logger.Debug("Cannot open script.", "path", path, "error", err)
		return TemplateInfo{}, false
	}
	defer f.Close()

	buf := make([]byte, maxScriptHeader)
	n, _ := f.Read(buf)
	block := sessionInitHeader.Find(buf[:n])
	if block == nil {
		return TemplateInfo{}, false
	}
	m := headerName.FindSubmatch(block)
	if m == nil || len(m[1]) == 0 {
		return TemplateInfo{}, false
	}
	info := TemplateInfo{Name: string(m[1]), Path: path, Meta: true}
	if d := headerDescription.FindSubmatch(block); d != nil {
		info.Description = string(d[1])
	}
	return info, true
}

// All lists filesystem templates followed by script templates.
func (c *TemplateCatalog) All() []TemplateInfo {
	return append(c.Filesystem(), c.Meta()...)
}

// Resolve finds name by exact match, filesystem templates first. An unknown
// name resolves to a guessed path in the user template dir; the session
// loader reports the missing template later.
func (c *TemplateCatalog) Resolve(name string) TemplateRef {
	if name == "" {
		return TemplateRef{}
	}
	if filepath.IsAbs(name) {
		return TemplateRef{Name: filepath.Base(name), Path: name}
	}
	for _, t := range c.Filesystem() {
		if t.Name == name {
			return TemplateRef{Name: t.Name, Path: t.Path}
		}
	}
	for _, t := range c.Meta() {
		if t.Name == name {
			return TemplateRef{Name: t.Name, Path: t.Path, Meta: true}
		}
	}

	guess := TemplateRef{Name: name, Path: filepath.Join(c.UserDir, name)}
	if suggestion, ok := c.Suggest(name); ok {
		c.logger.Warn("Template not found, using guessed path.", "template", name, "path", guess.Path, "closest_match", suggestion)
	} else {
		c.logger.Warn("Template not found, using guessed path.", "template", name, "path", guess.Path)
	}
	return guess
}

// Suggest returns the known template name closest to name, if any is
// reasonably close.
func (c *TemplateCatalog) Suggest(name string) (string, bool) {
	best, bestDist := "", -1
	needle := strings.ToLower(name)
	for _, t := range c.All() {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(t.Name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = t.Name, d
		}
	}
	if bestDist < 0 || bestDist > len(name)/2+1 {
		return "", false
	}
	return best, true
}
