package tilecover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DiskPublisher writes artifacts below a root directory. Every artifact is
// written to a temporary file first and only renamed into place once all of
// them were written.
type DiskPublisher struct {
	root string
}

func NewDiskPublisher(dsn string) (*DiskPublisher, error) {
	root, err := filepath.Abs(dsn)
	if err != nil {
		return nil, err
	}

	return &DiskPublisher{root: root}, nil
}

func (p *DiskPublisher) Root() string {
	return p.root
}

func (p *DiskPublisher) ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0755)
		}
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is already a file", dir)
	}
	return nil
}

func (p *DiskPublisher) Publish(ctx context.Context, artifacts []Artifact) error {
	type staged struct {
		tmp, final string
	}

	var pending []staged
	cleanup := func() {
		for _, s := range pending {
			os.Remove(s.tmp)
		}
	}

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}

		final := filepath.Join(p.root, filepath.FromSlash(a.Name))
		tmp, err := p.stage(final, a.Body)
		if tmp != "" {
			pending = append(pending, staged{tmp: tmp, final: final})
		}
		if err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
	}

	for i, s := range pending {
		if err := os.Rename(s.tmp, s.final); err != nil {
			var errs []error
			errs = append(errs, fmt.Errorf("rename %s: %w", s.final, err))
			for _, done := range pending[:i] {
				if rmErr := os.Remove(done.final); rmErr != nil {
					errs = append(errs, rmErr)
				}
			}
			pending = pending[i:]
			cleanup()
			return errors.Join(errs...)
		}
	}

	return nil
}

func (p *DiskPublisher) stage(final string, body []byte) (string, error) {
	dir := filepath.Dir(final)
	if err := p.ensureDir(dir); err != nil {
		return "", err
	}

	fh, err := os.CreateTemp(dir, "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		return "", err
	}

	if _, err := fh.Write(body); err != nil {
		fh.Close()
		return fh.Name(), err
	}

	if err := fh.Chmod(0644); err != nil {
		fh.Close()
		return fh.Name(), err
	}

	return fh.Name(), fh.Close()
}
