package pulsedb

import (
	"fmt"
	"os"
)

// Migrate rewrites the file at path from an older format version into the
// current one. Row encoding is stable across versions, so the file's events
// are replayed through a fresh appender, which renews the header layout and
// recomputes the candle. The rewrite happens in a sibling temp file that
// atomically replaces the original.
func Migrate(path string) error {
	r, err := OpenReadPath(path, ReadOpts{Migrate: true})
	if err != nil {
		return err
	}
	if r.params.version == Version {
		return nil
	}
	if r.params.version > Version {
		return fmt.Errorf("%s: format version %d is newer than this engine", path, r.params.version)
	}
	events, err := r.Events()
	if err != nil {
		return err
	}

	tmp := path + ".migrate"
	os.Remove(tmp)
	a, err := OpenAppendPath(tmp, r.params.stock, r.params.date, AppendOpts{
		Depth:     r.params.depth,
		Scale:     r.params.scale,
		ChunkSize: r.params.chunkSize,
		NoCandle:  !r.params.haveCandle,
		NoSync:    true,
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := a.Append(ev); err != nil {
			a.Close()
			os.Remove(tmp)
			return fmt.Errorf("%s: migrate: %w", path, err)
		}
	}
	if err := a.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
