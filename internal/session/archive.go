package session

// file: internal/session/archive.go

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ArchiveSuffixes lists the session archive formats, canonical first.
var ArchiveSuffixes = []string{".tar.xz", ".tar.zst", ".tar.gz"}

// ErrUnsafeArchive is returned for archives with entries that would land
// outside the destination or that are not plain files and directories.
var ErrUnsafeArchive = errors.New("unsafe archive entry")

// IsArchiveName reports whether name carries a session archive suffix.
func IsArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range ArchiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// InflateArchive unpacks a session archive into destParent and returns the
// session directory and name. The archive must hold a single top-level
// directory <dir> containing <dir>/<dir>.ardour, and <dir> must not already
// exist under destParent.
func InflateArchive(ctx context.Context, archivePath, destParent string) (dir, name string, err error) {
	// #nosec G304 -- archive path is the session the user chose.
	f, err := os.Open(archivePath)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to open archive")
	}
	defer f.Close()

	r, closeFn, err := decompressor(archivePath, f)
	if err != nil {
		return "", "", err
	}
	defer closeFn()

	if err := os.MkdirAll(destParent, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create session directory")
	}
	staging, err := os.MkdirTemp(destParent, ".inflate-")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(staging)

	top, err := untar(ctx, tar.NewReader(r), staging)
	if err != nil {
		return "", "", err
	}

	if _, err := os.Stat(filepath.Join(staging, top, top+StatefileSuffix)); err != nil {
		return "", "", errors.Newf("archive does not contain %s/%s%s", top, top, StatefileSuffix)
	}

	dir = filepath.Join(destParent, top)
	if _, err := os.Lstat(dir); err == nil {
		return "", "", errors.Newf("a session folder named %q already exists in %s", top, destParent)
	}
	if err := os.Rename(filepath.Join(staging, top), dir); err != nil {
		return "", "", errors.Wrap(err, "failed to move inflated session into place")
	}
	return dir, top, nil
}

func decompressor(path string, r io.Reader) (io.Reader, func(), error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read xz stream")
		}
		return xr, func() {}, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read zstd stream")
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(lower, ".tar.gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read gzip stream")
		}
		return gr, func() { _ = gr.Close() }, nil
	default:
		return nil, nil, errors.Newf("unsupported archive format: %s", filepath.Base(path))
	}
}

// untar extracts regular files and directories into dest and returns the
// single top-level directory name.
func untar(ctx context.Context, tr *tar.Reader, dest string) (string, error) {
	top := ""
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "corrupt archive")
		}

		clean := filepath.Clean(filepath.FromSlash(hdr.Name))
		if clean == "." {
			continue
		}
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", errors.Wrapf(ErrUnsafeArchive, "%s", hdr.Name)
		}
		first := strings.SplitN(clean, string(filepath.Separator), 2)[0]
		if top == "" {
			top = first
		} else if first != top {
			return "", errors.Newf("archive holds more than one top-level entry (%s, %s)", top, first)
		}

		target := filepath.Join(dest, clean)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", errors.Wrap(err, "failed to create directory from archive")
			}
		case tar.TypeReg:
			if clean == first {
				return "", errors.New("archive top-level entry is a file, not a session folder")
			}
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return "", err
			}
		default:
			return "", errors.Wrapf(ErrUnsafeArchive, "%s has unsupported type %q", hdr.Name, hdr.Typeflag)
		}
	}
	if top == "" {
		return "", errors.New("archive is empty")
	}
	return top, nil
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "failed to create directory from archive")
	}
	// #nosec G304 -- target is confined to the staging directory above.
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return errors.Wrap(err, "failed to create file from archive")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to extract file from archive")
	}
	return out.Close()
}
