package session

// file: internal/session/statefile.go

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Header is the part of a session state file read before loading it.
type Header struct {
	Version      int
	SampleRate   int
	SampleFormat string
	CreatedWith  string
	ModifiedWith string
}

// ErrNotStatefile is returned when the document root is not a Session element.
var ErrNotStatefile = errors.New("not a session state file")

// ReadHeader reads the header of the state file at path.
func ReadHeader(path string) (Header, error) {
	// #nosec G304 -- path is the session the user chose.
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	h, err := DecodeHeader(f)
	if err != nil {
		return Header{}, errors.Wrapf(err, "failed to read state file header: %s", path)
	}
	return h, nil
}

// DecodeHeader streams the state file and stops at the first top-level
// element after Config, so large sessions are not parsed in full.
func DecodeHeader(r io.Reader) (Header, error) {
	dec := xml.NewDecoder(r)
	var h Header

	root, err := nextStart(dec)
	if err != nil {
		return h, errors.Wrap(err, "empty state file")
	}
	if root.Name.Local != "Session" {
		return h, errors.Wrapf(ErrNotStatefile, "root element is <%s>", root.Name.Local)
	}
	for _, a := range root.Attr {
		switch a.Name.Local {
		case "version":
			h.Version = parseStateVersion(a.Value)
		case "sample-rate":
			h.SampleRate, err = strconv.Atoi(strings.TrimSpace(a.Value))
			if err != nil {
				return h, errors.Wrapf(err, "bad sample-rate %q", a.Value)
			}
		}
	}

	configSeen := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return h, nil
		}
		if err != nil {
			return h, errors.Wrap(err, "malformed state file")
		}
		switch t := tok.(type) {
		case xml.EndElement:
			// End of <Session>.
			return h, nil
		case xml.StartElement:
			if configSeen {
				return h, nil
			}
			switch t.Name.Local {
			case "ProgramVersion":
				h.CreatedWith = attr(t, "created-with")
				h.ModifiedWith = attr(t, "modified-with")
				if err := dec.Skip(); err != nil {
					return h, errors.Wrap(err, "malformed ProgramVersion")
				}
			case "Config":
				configSeen = true
				if err := readConfig(dec, &h); err != nil {
					return h, err
				}
			default:
				if err := dec.Skip(); err != nil {
					return h, errors.Wrapf(err, "malformed <%s>", t.Name.Local)
				}
			}
		}
	}
}

func readConfig(dec *xml.Decoder, h *Header) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "malformed Config")
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if t.Name.Local == "Option" && attr(t, "name") == "native-file-data-format" {
				h.SampleFormat = attr(t, "value")
			}
			if err := dec.Skip(); err != nil {
				return errors.Wrap(err, "malformed Config option")
			}
		}
	}
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// parseStateVersion accepts both the integer format ("7003") and the old
// dotted one ("2.0.0", read as major*1000 + minor).
func parseStateVersion(v string) int {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, ".") {
		n, _ := strconv.Atoi(v)
		return n
	}
	parts := strings.Split(v, ".")
	major, _ := strconv.Atoi(parts[0])
	minor := 0
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major*1000 + minor
}
