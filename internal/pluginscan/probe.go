package pluginscan

// file: internal/pluginscan/probe.go

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// probeBinary identifies a shared library by its header and returns its
// container format ("elf", "mach-o", "mach-o-fat", "pe").
func probeBinary(path string) (string, Status) {
	// #nosec G304 -- path comes from walking configured plugin directories.
	f, err := os.Open(path)
	if err != nil {
		return "", StatusUnreadable
	}
	defer f.Close()

	var hdr [4]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return "", StatusInvalid
	}
	switch {
	case hdr == [4]byte{0x7f, 'E', 'L', 'F'}:
		return "elf", StatusOK
	case hdr[0] == 'M' && hdr[1] == 'Z':
		return "pe", StatusOK
	}
	be := binary.BigEndian.Uint32(hdr[:])
	le := binary.LittleEndian.Uint32(hdr[:])
	switch {
	case be == 0xcafebabe:
		return "mach-o-fat", StatusOK
	case le == 0xfeedface || le == 0xfeedfacf || be == 0xfeedface || be == 0xfeedfacf:
		return "mach-o", StatusOK
	}
	return "", StatusInvalid
}

// candidate is a path found during the walk, before probing.
type candidate struct {
	format Format
	path   string
	info   os.FileInfo
}

// classify decides whether a walked path is a plugin. Bundles (directories)
// are reported with skipDir set so the walk does not descend into them.
func classify(d os.DirEntry) (f Format, ok, skipDir bool) {
	name := strings.ToLower(d.Name())
	if d.IsDir() {
		switch {
		case strings.HasSuffix(name, ".lv2"):
			return FormatLV2, true, true
		case strings.HasSuffix(name, ".vst3"):
			return FormatVST3, true, true
		}
		return "", false, false
	}
	switch filepath.Ext(name) {
	case ".vst3":
		return FormatVST3, true, false
	case ".so", ".dll", ".dylib":
		return FormatVST2, true, false
	}
	return "", false, false
}

var lv2Binary = regexp.MustCompile(`lv2:binary\s*<([^>]+)>`)

// bundleBinary finds the shared library inside an LV2 or VST3 bundle.
func bundleBinary(c candidate) string {
	switch c.format {
	case FormatLV2:
		// #nosec G304 -- manifest lives inside a discovered bundle.
		data, err := os.ReadFile(filepath.Join(c.path, "manifest.ttl"))
		if err != nil {
			return ""
		}
		m := lv2Binary.FindSubmatch(data)
		if m == nil {
			return ""
		}
		return filepath.Join(c.path, filepath.FromSlash(string(m[1])))
	case FormatVST3:
		if !c.info.IsDir() {
			return c.path
		}
		var found string
		_ = filepath.WalkDir(filepath.Join(c.path, "Contents"), func(p string, d os.DirEntry, err error) error {
			if err != nil || found != "" {
				return filepath.SkipDir
			}
			if !d.IsDir() {
				switch strings.ToLower(filepath.Ext(p)) {
				case ".so", ".vst3", ".dll", "":
					found = p
					return filepath.SkipAll
				}
			}
			return nil
		})
		return found
	default:
		return c.path
	}
}

func pluginName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// probe builds the cache entry for a candidate.
func probe(c candidate) Entry {
	e := Entry{
		Format:  c.format,
		Path:    c.path,
		Name:    pluginName(c.path),
		Size:    c.info.Size(),
		ModTime: c.info.ModTime().UTC(),
	}
	e.Binary = bundleBinary(c)
	if e.Binary == "" {
		e.Status = StatusInvalid
		return e
	}
	e.Arch, e.Status = probeBinary(e.Binary)
	return e
}
