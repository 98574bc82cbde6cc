package snapshot

import (
	"golang.org/x/sync/singleflight"
)

// Saver serializes whole-document saves of one snapshot. Save triggers can
// overlap (checkpoint cadence, long-key copies, final save on interrupt);
// an in-flight save is awaited rather than started twice.
type Saver struct {
	path  string
	snap  Snapshot
	group singleflight.Group
}

// NewSaver returns a Saver bound to a snapshot and its target path.
func NewSaver(path string, snap Snapshot) *Saver {
	return &Saver{path: path, snap: snap}
}

// Path returns the target path.
func (sv *Saver) Path() string { return sv.path }

// Save rewrites the snapshot file. Concurrent callers coalesce onto the
// in-flight write and all receive its result.
func (sv *Saver) Save() error {
	_, err, _ := sv.group.Do("save", func() (any, error) {
		return nil, sv.snap.write(sv.path)
	})
	return err
}
