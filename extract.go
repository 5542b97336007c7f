package cpk

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arloliu/cpk/crilayla"
	"github.com/arloliu/cpk/errs"
)

// ExtractOption configures an extraction call.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	outputDir string
}

// WithOutputDir places extracted files under dir instead of the working
// directory. Entry directory names are preserved beneath it.
func WithOutputDir(dir string) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.outputDir = dir
	}
}

// ExtractFile extracts the entries whose full path matches target,
// case-insensitively. cpkPath must be the archive Read was called with;
// extraction re-opens it for payload I/O.
func (a *Archive) ExtractFile(cpkPath, target string, opts ...ExtractOption) error {
	cfg := applyOptions(opts)

	var matches []*FileEntry
	for _, entry := range a.FileTable {
		if entry.FileType != "FILE" {
			continue
		}
		if strings.EqualFold(entry.FullPath(), target) {
			matches = append(matches, entry)
		}
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", errs.ErrFileNotFound, target)
	}

	f, err := os.Open(cpkPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	for _, entry := range matches {
		if err := extractEntry(f, entry, cfg); err != nil {
			return err
		}
	}

	return nil
}

// ExtractAll extracts every file entry, preserving directory names.
func (a *Archive) ExtractAll(cpkPath string, opts ...ExtractOption) error {
	cfg := applyOptions(opts)

	f, err := os.Open(cpkPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	for _, entry := range a.FileTable {
		if entry.FileType != "FILE" {
			continue
		}
		if err := extractEntry(f, entry, cfg); err != nil {
			return err
		}
	}

	return nil
}

// Replace would swap one entry's payload for the contents of another file.
// Rewriting the table packets is not implemented.
func (a *Archive) Replace(cpkPath, target, replacementPath, outputPath string) error {
	return fmt.Errorf("%w: file replacement not yet implemented", errs.ErrUnsupported)
}

func applyOptions(opts []ExtractOption) *extractConfig {
	cfg := &extractConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// extractEntry reads one entry's payload, decompresses it when it carries the
// CRILAYLA tag, and writes it to the destination path.
func extractEntry(r io.ReadSeeker, entry *FileEntry, cfg *extractConfig) error {
	outputPath := filepath.Join(cfg.outputDir, filepath.FromSlash(entry.FullPath()))

	if entry.FileSize == 0 {
		slog.Warn("skipping zero-size file", "name", entry.FullPath())
		return nil
	}

	slog.Debug("extracting file",
		"name", entry.FullPath(),
		"offset", fmt.Sprintf("0x%X", entry.FileOffset),
		"size", entry.FileSize)

	if _, err := r.Seek(int64(entry.FileOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to %s: %w", entry.FullPath(), err)
	}

	data := make([]byte, entry.FileSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read %s: %w", entry.FullPath(), err)
	}

	if crilayla.IsCompressed(data) {
		// Sanity-check the declared header region against the payload before
		// committing to a full decompression pass.
		if len(data) >= 16 {
			headerOffset := uint64(data[12]) | uint64(data[13])<<8 | uint64(data[14])<<16 | uint64(data[15])<<24
			if headerOffset+0x110 > uint64(len(data)) {
				return fmt.Errorf("%w: CRILAYLA header offset %d out of range for %d-byte payload",
					errs.ErrCompression, headerOffset, len(data))
			}
		}

		decompressed, err := crilayla.Decompress(data)
		if err != nil {
			return fmt.Errorf("decompress %s: %w", entry.FullPath(), err)
		}
		slog.Debug("decompressed CRILAYLA payload",
			"name", entry.FullPath(),
			"compressed", len(data),
			"uncompressed", len(decompressed))
		data = decompressed
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	return nil
}
