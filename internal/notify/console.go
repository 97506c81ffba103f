package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/maltedev/price-spread/internal/session"
)

// ConsoleNotifier prints messages to w. When outputDir is set, a delivered
// spreadsheet is copied there before the session removes its own copy.
type ConsoleNotifier struct {
	w         io.Writer
	outputDir string
	saved     string
}

func NewConsoleNotifier(w io.Writer, outputDir string) *ConsoleNotifier {
	return &ConsoleNotifier{w: w, outputDir: outputDir}
}

func (n *ConsoleNotifier) Progress(_ context.Context, text string) error {
	_, err := fmt.Fprintln(n.w, text)
	return err
}

func (n *ConsoleNotifier) Deliver(ctx context.Context, d session.Delivery) error {
	if _, err := fmt.Fprintln(n.w, d.Text); err != nil {
		return err
	}
	if d.Artifact == nil || n.outputDir == "" {
		return nil
	}

	dst, err := n.copyArtifact(ctx, d.Artifact.Path)
	if err != nil {
		return err
	}
	n.saved = dst
	_, err = fmt.Fprintf(n.w, "Spreadsheet saved to %s\n", dst)
	return err
}

// Saved returns the path of the last copied spreadsheet.
func (n *ConsoleNotifier) Saved() string {
	return n.saved
}

func (n *ConsoleNotifier) copyArtifact(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(n.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer in.Close()

	dst := filepath.Join(n.outputDir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close copy: %w", err)
	}
	return dst, nil
}
