package session

// file: internal/session/defaultname.go

import (
	"os/user"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/cockroachdb/errors"
)

// nameData is available to default-name templates as the dot value.
type nameData struct {
	Now  time.Time
	User string
}

// DefaultName renders the configured default session name. Sprig functions
// are available, e.g. `Untitled-{{ now | date "2006-01-02" }}` or
// `{{ .User }}-{{ .Now | date "0102" }}`. Characters that are illegal in
// session names are replaced.
func DefaultName(tmpl string, now time.Time, p Platform) (string, error) {
	t, err := template.New("default_name").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "invalid default session name template")
	}
	data := nameData{Now: now}
	if u, err := user.Current(); err == nil {
		data.User = u.Username
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", errors.Wrap(err, "failed to render default session name")
	}
	name := SanitizeName(NormalizeName(b.String()), p)
	if name == "" {
		return "", errors.New("default session name template rendered an empty name")
	}
	return name, nil
}
