package keygen

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// writeFileContent streams the file at path into the fingerprint.
func writeFileContent(w *writer, param, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "keygen: parameter %q", param)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "keygen: parameter %q", param)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrInvalidDirective, "parameter %q: %s is a directory", param, path)
	}

	w.putByte(tagFile)
	w.putUvarint(uint64(info.Size()))
	n, err := io.Copy(w.h, f)
	if err != nil {
		return errors.Wrapf(err, "keygen: read %s for parameter %q", path, param)
	}
	if n != info.Size() {
		return errors.Newf("keygen: %s changed size while hashing parameter %q", path, param)
	}
	return nil
}

// writePathStat hashes the path together with its size and modification time.
func writePathStat(w *writer, param, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "keygen: parameter %q", param)
	}
	w.putByte(tagStat)
	w.putString(path)
	w.putVarint(info.Size())
	w.putVarint(info.ModTime().UnixNano())
	return nil
}
