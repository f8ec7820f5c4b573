package session

// file: internal/session/naming.go

import (
	"path/filepath"
	"runtime"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// File name suffixes.
const (
	StatefileSuffix = ".ardour"
	TemplateSuffix  = ".template"
)

// Platform selects the path and file-name rules applied to a name.
type Platform int

// Supported platforms.
const (
	PlatformUnix Platform = iota
	PlatformWindows
)

// CurrentPlatform returns the rules for the running OS.
func CurrentPlatform() Platform {
	if runtime.GOOS == "windows" {
		return PlatformWindows
	}
	return PlatformUnix
}

// NameKind says how a typed session name should be interpreted.
type NameKind int

// Name kinds.
const (
	BareName NameKind = iota
	AbsolutePath
	RelativePath
)

func (k NameKind) String() string {
	switch k {
	case AbsolutePath:
		return "absolute"
	case RelativePath:
		return "relative"
	default:
		return "bare"
	}
}

// NormalizeName trims surrounding white space and converts to NFC so that
// names typed on different systems compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// StripStatefileSuffix removes every trailing StatefileSuffix. The result
// never ends in the suffix.
func StripStatefileSuffix(name string) string {
	for strings.HasSuffix(name, StatefileSuffix) {
		name = strings.TrimSuffix(name, StatefileSuffix)
	}
	return name
}

func isSeparator(c byte, p Platform) bool {
	return c == '/' || (p == PlatformWindows && c == '\\')
}

// ClassifyName decides from the leading characters (and any embedded
// separator) whether name is a bare session name or a location.
func ClassifyName(name string, p Platform) NameKind {
	if name == "" {
		return BareName
	}
	if isSeparator(name[0], p) {
		return AbsolutePath
	}
	if p == PlatformWindows && len(name) >= 3 && isDriveLetter(name[0]) && name[1] == ':' && isSeparator(name[2], p) {
		return AbsolutePath
	}
	if name == "." || name == ".." {
		return RelativePath
	}
	if strings.HasPrefix(name, ".") {
		rest := strings.TrimPrefix(strings.TrimPrefix(name, "."), ".")
		if rest != "" && isSeparator(rest[0], p) {
			return RelativePath
		}
	}
	for i := 0; i < len(name); i++ {
		if isSeparator(name[i], p) {
			return RelativePath
		}
	}
	return BareName
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

const illegalEverywhere = `/\:;`
const illegalOnWindows = `<>"|?*`

// IllegalCharacter returns the first character of name that cannot appear
// in a session name on p.
func IllegalCharacter(name string, p Platform) (rune, bool) {
	for _, r := range name {
		if strings.ContainsRune(illegalEverywhere, r) {
			return r, true
		}
		if p == PlatformWindows && (strings.ContainsRune(illegalOnWindows, r) || unicode.IsControl(r)) {
			return r, true
		}
	}
	return 0, false
}

// SanitizeName replaces characters that IllegalCharacter would reject.
func SanitizeName(name string, p Platform) string {
	var b strings.Builder
	for _, r := range name {
		if _, bad := IllegalCharacter(string(r), p); bad {
			b.WriteRune('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SplitLocation turns a path-like name into a session directory and a
// session name. When the name ended in the state-file suffix the directory
// is its parent; otherwise the path itself is the session directory.
func SplitLocation(name string, kind NameKind, endedWithStatefile bool, cwd string) (dir, base string) {
	full := filepath.FromSlash(name)
	if kind == RelativePath {
		full = filepath.Join(cwd, full)
	}
	full = filepath.Clean(full)
	if endedWithStatefile {
		return filepath.Dir(full), filepath.Base(full)
	}
	return full, filepath.Base(full)
}
