package store

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Backup produces an atomic, point-in-time copy of the database at
// destPath using SQLite's native VACUUM INTO snapshot primitive. If that
// fails (e.g. insufficient disk space mid-vacuum), it falls back to a
// bytewise copy of the main database file -- consistent only insofar as
// no writer is concurrently active, which the caller is expected to
// accept per the storage engine's backup contract.
func (c *conn) Backup(ctx context.Context, destPath string) error {
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear previous backup target: %w", err)
	}

	if _, err := c.exec(fmt.Sprintf("VACUUM INTO %s;", quoteSQLiteString(destPath))); err == nil {
		return nil
	}

	c.logger.Warnf("backup: VACUUM INTO failed, falling back to file copy")
	return c.fileCopyBackup(destPath)
}

func (c *conn) fileCopyBackup(destPath string) error {
	// In WAL mode a committed row can still live only in the -wal file;
	// a bytewise copy of the main db file alone would silently drop it.
	// TRUNCATE folds the WAL back into the main file and empties it.
	if _, err := c.exec(`PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		return fmt.Errorf("checkpoint wal before fallback copy: %w", err)
	}

	src, err := os.Open(c.filePath())
	if err != nil {
		return fmt.Errorf("open source db for fallback backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy db file: %w", err)
	}
	return dst.Sync()
}

func (c *conn) filePath() string {
	return c.dbFile
}

// quoteSQLiteString wraps a path in single quotes for use in a SQL
// statement, doubling any embedded quote per SQLite's string-literal
// escaping rule.
func quoteSQLiteString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
