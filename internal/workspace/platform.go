package workspace

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"gallery-go/internal/gallery"
)

// Permission is the answer of a permission query or request.
type Permission int

const (
	PermissionPrompt Permission = iota
	PermissionGranted
	PermissionDenied
)

// Platform is the host capability behind the workspace: choosing a directory
// and deciding whether the process may read and write it.
type Platform interface {
	// Unsupported returns a human-readable reason when directory access is
	// unavailable, or "" when it is supported.
	Unsupported() string

	// Pick asks the user for a directory. Returns gallery.ErrUserCancelled
	// when the user dismisses the picker.
	Pick(ctx context.Context) (*gallery.DirectoryHandle, error)

	// QueryPermission checks access without asking the user.
	QueryPermission(ctx context.Context, h *gallery.DirectoryHandle) Permission

	// RequestPermission asks the user to grant access to h again.
	RequestPermission(ctx context.Context, h *gallery.DirectoryHandle) (Permission, error)
}

// Reasons reported by the built-in platforms.
const (
	ReasonNotInteractive = "choosing a workspace needs an interactive terminal; set workspace.path in the config for scripted use"
	ReasonNoDirectory    = "no workspace directory configured"
)

// TerminalPlatform asks on the terminal. It is supported only when input is a TTY.
type TerminalPlatform struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

var _ Platform = (*TerminalPlatform)(nil)

// NewTerminalPlatform creates a platform reading answers from in.
func NewTerminalPlatform(in *os.File, out io.Writer) *TerminalPlatform {
	return newTerminalPlatform(in, out, term.IsTerminal(int(in.Fd())))
}

func newTerminalPlatform(in io.Reader, out io.Writer, interactive bool) *TerminalPlatform {
	return &TerminalPlatform{in: bufio.NewReader(in), out: out, interactive: interactive}
}

func (p *TerminalPlatform) Unsupported() string {
	if !p.interactive {
		return ReasonNotInteractive
	}
	return ""
}

func (p *TerminalPlatform) Pick(ctx context.Context) (*gallery.DirectoryHandle, error) {
	answer, err := p.ask(ctx, "Workspace directory (empty to cancel): ")
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return nil, gallery.ErrUserCancelled
	}

	h, err := handleForPath(answer)
	if err != nil {
		return nil, err
	}

	ok, err := p.confirm(ctx, fmt.Sprintf("Allow gallery to read and write files in %s?", h.Path))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gallery.ErrPermissionDenied
	}
	if !writable(h.Path) {
		return nil, fmt.Errorf("%w: %s is not writable", gallery.ErrPermissionDenied, h.Path)
	}
	return h, nil
}

func (p *TerminalPlatform) QueryPermission(_ context.Context, h *gallery.DirectoryHandle) Permission {
	if writable(h.Path) {
		return PermissionGranted
	}
	return PermissionPrompt
}

func (p *TerminalPlatform) RequestPermission(ctx context.Context, h *gallery.DirectoryHandle) (Permission, error) {
	ok, err := p.confirm(ctx, fmt.Sprintf("Allow gallery to read and write files in %s again?", h.Path))
	if err != nil {
		return PermissionDenied, err
	}
	if !ok || !writable(h.Path) {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (p *TerminalPlatform) confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.ask(ctx, question+" [y/N] ")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// ask prints prompt and reads one trimmed line. EOF counts as an empty answer.
func (p *TerminalPlatform) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// StaticPlatform picks a preconfigured directory without prompting.
type StaticPlatform struct {
	path string
}

var _ Platform = (*StaticPlatform)(nil)

func NewStaticPlatform(path string) *StaticPlatform {
	return &StaticPlatform{path: path}
}

func (p *StaticPlatform) Unsupported() string {
	if p.path == "" {
		return ReasonNoDirectory
	}
	return ""
}

func (p *StaticPlatform) Pick(context.Context) (*gallery.DirectoryHandle, error) {
	if p.path == "" {
		return nil, gallery.ErrUserCancelled
	}
	h, err := handleForPath(p.path)
	if err != nil {
		return nil, err
	}
	if !writable(h.Path) {
		return nil, fmt.Errorf("%w: %s is not writable", gallery.ErrPermissionDenied, h.Path)
	}
	return h, nil
}

func (p *StaticPlatform) QueryPermission(_ context.Context, h *gallery.DirectoryHandle) Permission {
	if writable(h.Path) {
		return PermissionGranted
	}
	return PermissionPrompt
}

func (p *StaticPlatform) RequestPermission(_ context.Context, h *gallery.DirectoryHandle) (Permission, error) {
	if writable(h.Path) {
		return PermissionGranted, nil
	}
	return PermissionDenied, nil
}

func handleForPath(raw string) (*gallery.DirectoryHandle, error) {
	if strings.HasPrefix(raw, "~"+string(filepath.Separator)) || raw == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		raw = filepath.Join(home, strings.TrimPrefix(raw, "~"))
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat workspace directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", abs)
	}
	return &gallery.DirectoryHandle{Name: filepath.Base(abs), Path: abs}, nil
}

// writable reports whether dir exists and a file can be created in it.
func writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(dir, ".gallery-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
