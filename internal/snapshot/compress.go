package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
)

// CompressedExt is appended to compressed backup file names.
const CompressedExt = ".sz"

// Compress writes a snappy-framed copy of src to dst and returns the number
// of uncompressed bytes read.
func Compress(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open backup: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create compressed backup: %w", err)
	}

	w := snappy.NewBufferedWriter(out)
	n, err := io.Copy(w, in)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("compress backup: %w", err)
	}
	if err := w.Close(); err != nil {
		out.Close()
		return 0, fmt.Errorf("flush compressed backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close compressed backup: %w", err)
	}
	return n, nil
}

// Decompress restores a file written by Compress.
func Decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open compressed backup: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(out, snappy.NewReader(in)); err != nil {
		out.Close()
		return fmt.Errorf("decompress backup: %w", err)
	}
	return out.Close()
}
