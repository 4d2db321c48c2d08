package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/scanner"
)

// FakeTransport backs the "remote" side with a second local directory. It
// implements Transport in full so tests can exercise the Coordinator and
// Executor without ssh/rsync present, the way unit tests throughout the
// corpus substitute an in-memory or local stand-in for a network dependency.
type FakeTransport struct {
	// FailNetwork, when set, makes the next N PushFile/PullFile calls
	// return ErrNetwork instead of performing the copy.
	FailNetwork int
}

func (f *FakeTransport) RunRemote(_ context.Context, cmd string) (Result, error) {
	return Result{}, fmt.Errorf("FakeTransport: RunRemote not supported for %q", cmd)
}

func (f *FakeTransport) Reachable(context.Context) error { return nil }

func (f *FakeTransport) RemoteVersion(context.Context) (string, error) {
	return "fake-1.0", nil
}

func (f *FakeTransport) Scan(ctx context.Context, root string, excludePatterns []string) (manifest.Manifest, error) {
	return scanner.Scan(root, scanner.NewExcludeSet(excludePatterns), nil)
}

func (f *FakeTransport) PushFile(_ context.Context, localPath, root, remoteRelPath string) error {
	if f.FailNetwork > 0 {
		f.FailNetwork--
		return ErrNetwork
	}
	return copyFile(localPath, filepath.Join(root, remoteRelPath))
}

func (f *FakeTransport) PullFile(_ context.Context, root, remoteRelPath, localPath string) error {
	if f.FailNetwork > 0 {
		f.FailNetwork--
		return ErrNetwork
	}
	return copyFile(filepath.Join(root, remoteRelPath), localPath)
}

func (f *FakeTransport) DeleteRemote(_ context.Context, root, remoteRelPath string) error {
	err := os.Remove(filepath.Join(root, remoteRelPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FakeTransport) CopyRemote(_ context.Context, root, srcRel, dstRel string) error {
	return copyFile(filepath.Join(root, srcRel), filepath.Join(root, dstRel))
}

func (f *FakeTransport) ReadFile(_ context.Context, root, remoteRelPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, remoteRelPath))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
