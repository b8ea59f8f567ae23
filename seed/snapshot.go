package seed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrSnapshotMissing means the snapshot file for an entity is absent.
	ErrSnapshotMissing = errors.New("snapshot file missing")
	// ErrMalformedSnapshot means a snapshot is not a JSON array of objects,
	// or a record does not fit the entity's model.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrUnknownEntity means a snapshot file name maps to no accessor.
	ErrUnknownEntity = errors.New("no accessor matches snapshot")
)

// SnapshotError reports a failure tied to one snapshot file, and to one
// record of it when Record is not negative.
type SnapshotError struct {
	File   string
	Record int
	Err    error
}

func (e *SnapshotError) Error() string {
	if e.Record >= 0 {
		return fmt.Sprintf("%s record %d: %v", e.File, e.Record, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// ReadSnapshot reads a snapshot file as an ordered list of records.
func ReadSnapshot(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &SnapshotError{File: path, Record: -1, Err: ErrSnapshotMissing}
	}
	if err != nil {
		return nil, &SnapshotError{File: path, Record: -1, Err: fmt.Errorf("read: %w", err)}
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &SnapshotError{File: path, Record: -1, Err: fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)}
	}

	for i, rec := range records {
		if !bytes.HasPrefix(bytes.TrimSpace(rec), []byte("{")) {
			return nil, &SnapshotError{File: path, Record: i, Err: fmt.Errorf("%w: record is not an object", ErrMalformedSnapshot)}
		}
	}
	return records, nil
}
