package monkey

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/stressforge/harness-go/pkg/log"
)

// diskLatency induces IO pressure: it writes a set of files with fsync
// after every chunk, then performs random-offset read cycles across them.
// The files are removed before the scenario returns.
func (m *Monkey) diskLatency(ctx context.Context) error {
	opts := m.opts.Disk
	if err := os.MkdirAll(m.opts.ScratchDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create scratch directory")
	}

	paths := make([]string, 0, opts.FileCount)
	defer func() {
		for _, path := range paths {
			os.Remove(path)
		}
	}()

	chunk := make([]byte, 1<<20)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	for i := 0; i < opts.FileCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(m.opts.ScratchDir, fmt.Sprintf("stress_io_%d.dat", i))
		if err := writeSynced(path, chunk, opts.FileSize); err != nil {
			return err
		}
		paths = append(paths, path)
	}
	log.Infof("[Inject]: Wrote %d files of %d bytes, starting %d read/write cycles",
		len(paths), opts.FileSize, opts.ReadCycles)

	buf := make([]byte, 4096)
	for cycle := 0; cycle < opts.ReadCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := paths[m.rng.Intn(len(paths))]
		offset := m.rng.Int63n(opts.FileSize)
		if err := readRandomOffset(path, buf, offset); err != nil {
			return err
		}
		if err := writeRandomOffset(path, buf, offset); err != nil {
			return err
		}
	}
	return nil
}

func writeSynced(path string, chunk []byte, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %v", path)
	}
	defer f.Close()

	var written int64
	for written < size {
		n := int64(len(chunk))
		if size-written < n {
			n = size - written
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			return errors.Wrapf(err, "failed to write %v", path)
		}
		if err := f.Sync(); err != nil {
			return errors.Wrapf(err, "failed to sync %v", path)
		}
		written += n
	}
	return nil
}

func writeRandomOffset(path string, buf []byte, offset int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %v", path)
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, offset); err != nil {
		return errors.Wrapf(err, "failed to write %v", path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %v", path)
	}
	return nil
}

func readRandomOffset(path string, buf []byte, offset int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %v", path)
	}
	defer f.Close()

	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to read %v", path)
	}
	return nil
}
