package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/scanner"
)

// SSHTransport shells out to the ssh and rsync binaries: the core never
// re-implements the SSH wire protocol, it only invokes it.
type SSHTransport struct {
	User         string
	Host         string
	Port         int
	Identity     string // optional private key path
	SSHTimeout   time.Duration
	RsyncTimeout time.Duration
	BandwidthKB  int   // KB/s, 0 = unlimited
	MaxFileSize  int64 // bytes, 0 = unlimited

	Log lgr.L
}

// endpoint renders the user@host target ssh/rsync expect.
func (t *SSHTransport) endpoint() string {
	if t.User != "" {
		return fmt.Sprintf("%s@%s", t.User, t.Host)
	}
	return t.Host
}

func (t *SSHTransport) log() lgr.L {
	if t.Log == nil {
		return lgr.NoOp
	}
	return t.Log
}

// sshArgs builds the base ssh argument list shared by RunRemote and rsync's
// -e flag.
func (t *SSHTransport) sshArgs() []string {
	args := []string{"-o", "BatchMode=yes", "-p", strconv.Itoa(t.port())}
	if t.Identity != "" {
		args = append(args, "-i", t.Identity)
	}
	if t.SSHTimeout > 0 {
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", int(t.SSHTimeout.Seconds())))
	}
	return args
}

func (t *SSHTransport) port() int {
	if t.Port == 0 {
		return 22
	}
	return t.Port
}

func (t *SSHTransport) rshFlag() string {
	return "ssh " + strings.Join(t.sshArgs(), " ")
}

func (t *SSHTransport) RunRemote(ctx context.Context, cmd string) (Result, error) {
	runCtx, cancel := t.withTimeout(ctx, t.SSHTimeout)
	defer cancel()

	args := append(append([]string{}, t.sshArgs()...), t.endpoint(), cmd)
	out, errOut, exitCode, err := runCaptured(runCtx, "ssh", args...)
	res := Result{Stdout: out, Stderr: errOut, ExitCode: exitCode}
	if err != nil {
		return res, classifySSHError(exitCode, errOut, err)
	}
	return res, nil
}

func (t *SSHTransport) Reachable(ctx context.Context) error {
	if _, err := t.RunRemote(ctx, "true"); err != nil {
		return fmt.Errorf("ssh control connection failed: %w", err)
	}
	if _, err := t.RunRemote(ctx, "command -v rsync"); err != nil {
		return fmt.Errorf("rsync not found on remote: %w", err)
	}
	return nil
}

func (t *SSHTransport) RemoteVersion(ctx context.Context) (string, error) {
	res, err := t.RunRemote(ctx, "rsync --version")
	if err != nil {
		return "", err
	}
	lines := strings.SplitN(res.Stdout, "\n", 2)
	return strings.TrimSpace(lines[0]), nil
}

func (t *SSHTransport) Scan(ctx context.Context, root string, excludePatterns []string) (manifest.Manifest, error) {
	checkCtx, cancel := t.withTimeout(ctx, t.SSHTimeout)
	defer cancel()
	checkRes, err := t.RunRemote(checkCtx, fmt.Sprintf("test -d %s", shellQuote(root)))
	if err != nil {
		if checkRes.ExitCode == 1 {
			// Non-existent remote root: empty manifest, not an error.
			return manifest.New(), nil
		}
		return nil, fmt.Errorf("check remote root %s: %w", root, err)
	}

	// find ... -printf emits NUL-separated records so paths with spaces or
	// newlines survive the trip: <relpath>\t<mtime>\t<size>\t<kind>\0. A path
	// containing a tab splits into more than four fields and is skipped.
	script := fmt.Sprintf(
		`cd %s && find . -mindepth 1 \( -type f -o -type l \) -printf '%%P\t%%T@\t%%s\t%%y\0'`,
		shellQuote(root),
	)
	res, err := t.RunRemote(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("remote scan of %s: %w", root, err)
	}

	m := manifest.New()
	excludes := scanner.NewExcludeSet(excludePatterns)
	for _, rec := range strings.Split(res.Stdout, "\x00") {
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, "\t")
		if len(fields) != 4 {
			continue
		}
		rel := fields[0]
		if excludes.Match(rel) {
			continue
		}
		mtimeFloat, perr := strconv.ParseFloat(fields[1], 64)
		if perr != nil {
			continue
		}
		size, serr := strconv.ParseInt(fields[2], 10, 64)
		if serr != nil {
			continue
		}
		kind := manifest.KindFile
		if fields[3] == "l" {
			kind = manifest.KindSymlink
			size = 0
		}
		m[rel] = manifest.Entry{Path: rel, MTime: int64(mtimeFloat), Size: size, Kind: kind}
	}
	return m, nil
}

func (t *SSHTransport) PushFile(ctx context.Context, localPath, root, remoteRelPath string) error {
	runCtx, cancel := t.withTimeout(ctx, t.RsyncTimeout)
	defer cancel()

	remotePath := path.Join(root, remoteRelPath)
	if _, err := t.RunRemote(ctx, fmt.Sprintf("mkdir -p -- %s", shellQuote(path.Dir(remotePath)))); err != nil {
		return err
	}

	dest := fmt.Sprintf("%s:%s", t.endpoint(), remotePath)
	args := t.rsyncArgs(localPath, dest)
	_, errOut, exitCode, err := runCaptured(runCtx, "rsync", args...)
	if err != nil {
		return classifyRsyncError(exitCode, errOut, err)
	}
	return nil
}

func (t *SSHTransport) PullFile(ctx context.Context, root, remoteRelPath, localPath string) error {
	runCtx, cancel := t.withTimeout(ctx, t.RsyncTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("%w: create local parent of %s: %v", ErrPermission, localPath, err)
	}

	src := fmt.Sprintf("%s:%s", t.endpoint(), path.Join(root, remoteRelPath))
	args := t.rsyncArgs(src, localPath)
	_, errOut, exitCode, err := runCaptured(runCtx, "rsync", args...)
	if err != nil {
		return classifyRsyncError(exitCode, errOut, err)
	}
	return nil
}

// rsyncArgs builds the shared rsync invocation: archive mode, partial-resume,
// and optional bandwidth/size caps from config.
func (t *SSHTransport) rsyncArgs(src, dst string) []string {
	args := []string{
		"-az",        // archive (preserves mtime, among other things), compress
		"--partial",  // keep partial transfers for resumption on retry
		"-e", t.rshFlag(),
	}
	if t.RsyncTimeout > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", int(t.RsyncTimeout.Seconds())))
	}
	if t.BandwidthKB > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%d", t.BandwidthKB))
	}
	if t.MaxFileSize > 0 {
		args = append(args, fmt.Sprintf("--max-size=%d", t.MaxFileSize))
	}
	return append(args, src, dst)
}

func (t *SSHTransport) DeleteRemote(ctx context.Context, root, remoteRelPath string) error {
	_, err := t.RunRemote(ctx, fmt.Sprintf("rm -f -- %s", shellQuote(path.Join(root, remoteRelPath))))
	return err
}

func (t *SSHTransport) CopyRemote(ctx context.Context, root, srcRel, dstRel string) error {
	src := path.Join(root, srcRel)
	dst := path.Join(root, dstRel)
	_, err := t.RunRemote(ctx, fmt.Sprintf(
		"mkdir -p -- %s && cp -a -- %s %s",
		shellQuote(path.Dir(dst)), shellQuote(src), shellQuote(dst),
	))
	return err
}

func (t *SSHTransport) ReadFile(ctx context.Context, root, remoteRelPath string) ([]byte, error) {
	res, err := t.RunRemote(ctx, fmt.Sprintf("cat -- %s", shellQuote(path.Join(root, remoteRelPath))))
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

func (t *SSHTransport) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func runCaptured(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	cmd.Stdin = bytes.NewReader(nil)
	cmd.Env = append(os.Environ(), "LC_ALL=C")

	err = cmd.Run()
	exitCode = cmd.ProcessState.ExitCode()
	return outBuf.String(), errBuf.String(), exitCode, err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// classifySSHError distinguishes network-class ssh failures (exit 255 is
// ssh's own catch-all for connection problems) from remote command failures,
// which are left unwrapped so the caller can inspect exitCode/stderr.
func classifySSHError(exitCode int, stderr string, err error) error {
	if exitCode == 255 {
		return fmt.Errorf("%w: %s", ErrNetwork, firstLine(stderr))
	}
	return err
}

// classifyRsyncError maps rsync's documented exit codes to the
// retriable/non-retriable split the Executor needs.
func classifyRsyncError(exitCode int, stderr string, err error) error {
	switch exitCode {
	case 10, 12, 30, 35: // socket I/O, protocol stream, timeout, daemon connection timeout
		return fmt.Errorf("%w: rsync exit %d: %s", ErrNetwork, exitCode, firstLine(stderr))
	case 23, 24:
		// Partial transfer: some files vanished or errored. Treat the
		// underlying cause as retriable unless it looks like a hard
		// permission/path failure.
		if strings.Contains(stderr, "Permission denied") || strings.Contains(stderr, "No such file or directory") {
			return fmt.Errorf("%w: rsync exit %d: %s", ErrPermission, exitCode, firstLine(stderr))
		}
		return fmt.Errorf("%w: rsync exit %d: %s", ErrNetwork, exitCode, firstLine(stderr))
	default:
		return fmt.Errorf("%w: rsync exit %d: %s", ErrPermission, exitCode, firstLine(stderr))
	}
}

func firstLine(s string) string {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return s
	}
	return s[:i]
}
