package storage

import (
	"os"
)

// DatabaseSize returns the bytes used by the SQLite database at dbPath,
// including its WAL and shared-memory files. Missing files count as zero.
func DatabaseSize(dbPath string) (int64, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return 0, nil
	}
	var total int64
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
