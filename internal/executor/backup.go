package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const backupDirName = ".sync-backups"

// backupTimestamp returns the "yyyymmdd_hhmmss" suffix used for backup
// filenames. Exposed as a var so tests can pin the clock.
var backupTimestamp = func() string {
	return time.Now().Format("20060102_150405")
}

// backupLocal copies the local copy of relPath into
// <LocalDir>/.sync-backups/<relPath>.<timestamp> before it is overwritten or
// removed.
func (ex *Executor) backupLocal(relPath string) error {
	src := filepath.Join(ex.opts.LocalDir, filepath.FromSlash(relPath))
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s for backup: %w", relPath, err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s for backup: %w", relPath, err)
	}

	dst := filepath.Join(ex.opts.LocalDir, backupDirName, filepath.FromSlash(relPath)+"."+backupTimestamp())
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup dir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write backup for %s: %w", relPath, err)
	}
	return nil
}

// backupRemote stages the remote copy of relPath under
// <RemoteDir>/.sync-backups/<relPath>.<timestamp> via the transport's
// server-side copy, avoiding a round-trip download.
func (ex *Executor) backupRemote(ctx context.Context, relPath string) error {
	dst := backupDirName + "/" + relPath + "." + backupTimestamp()
	if err := ex.opts.Transport.CopyRemote(ctx, ex.opts.RemoteDir, relPath, dst); err != nil {
		return fmt.Errorf("stage remote backup for %s: %w", relPath, err)
	}
	return nil
}
