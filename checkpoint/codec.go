// Package checkpoint persists fitted subtype models so that interrupted
// runs can resume at the last completed subtype count or fold.
//
// Checkpoints are encoded as gzip-compressed gob values and stored either
// in a BadgerDB database or as one file per checkpoint in a directory.
package checkpoint

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/kshedden/sustain/sustainlib"
)

// Encode writes cp to w as a gzip-compressed gob value.
func Encode(w io.Writer, cp *sustainlib.Checkpoint) error {

	gid := gzip.NewWriter(w)
	enc := gob.NewEncoder(gid)
	if err := enc.Encode(cp); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	return gid.Close()
}

// Decode reads a checkpoint written by Encode.
func Decode(r io.Reader) (*sustainlib.Checkpoint, error) {

	gid, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer gid.Close()

	dec := gob.NewDecoder(gid)

	var cp sustainlib.Checkpoint
	if err := dec.Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	return &cp, nil
}

func marshal(cp *sustainlib.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, cp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
