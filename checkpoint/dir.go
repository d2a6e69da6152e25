package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kshedden/sustain/sustainlib"
)

// DirStore is a sustainlib.Store keeping one gzip-compressed gob file per
// checkpoint in a directory.
type DirStore struct {
	Dir string
}

var _ sustainlib.Store = DirStore{}

// Path returns the file name of the checkpoint stored under key.
func (ds DirStore) Path(key sustainlib.Key) string {
	return filepath.Join(ds.Dir, key.String()+".gob.gz")
}

// Save implements sustainlib.Store.  The file is written under a temporary
// name and renamed, so that an interrupted save leaves no partial
// checkpoint.
func (ds DirStore) Save(ctx context.Context, key sustainlib.Key, cp *sustainlib.Checkpoint) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(ds.Dir, 0750); err != nil {
		return fmt.Errorf("create checkpoint directory %s: %w", ds.Dir, err)
	}

	fname := ds.Path(key)
	fid, err := os.CreateTemp(ds.Dir, filepath.Base(fname)+".tmp*")
	if err != nil {
		return err
	}

	if err := Encode(fid, cp); err != nil {
		fid.Close()
		os.Remove(fid.Name())
		return err
	}
	if err := fid.Close(); err != nil {
		os.Remove(fid.Name())
		return err
	}

	return os.Rename(fid.Name(), fname)
}

// Load implements sustainlib.Store.
func (ds DirStore) Load(ctx context.Context, key sustainlib.Key) (*sustainlib.Checkpoint, bool, error) {

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	fid, err := os.Open(ds.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer fid.Close()

	cp, err := Decode(fid)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", ds.Path(key), err)
	}

	return cp, true, nil
}
