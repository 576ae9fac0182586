package library

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Export writes the frames of a finished recording into a zip archive at
// dest. It fails with ErrLocked while the session is still writing.
func (l *Library) Export(ctx context.Context, id, dest string) error {
	r, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if !r.Finished {
		return fmt.Errorf("%w: %s", ErrLocked, id)
	}

	unlock, err := tryLock(r.Dir)
	if err != nil {
		return err
	}
	defer unlock()

	frames, err := frameFiles(r.Dir)
	if err != nil {
		return fmt.Errorf("list frames: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".export-*.zip")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()

	if err := writeZip(ctx, tmp, r.Dir, frames); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move archive: %w", err)
	}

	l.log.Info("recording exported",
		zap.String("id", id),
		zap.String("dest", dest),
		zap.Int("frames", len(frames)))
	return nil
}

func writeZip(ctx context.Context, w io.Writer, dir string, names []string) error {
	zw := zip.NewWriter(w)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		if err := addFile(zw, dir, name); err != nil {
			_ = zw.Close()
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	// PNG data is already compressed
	hdr.Method = zip.Store

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}
