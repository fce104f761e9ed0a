// Package mboxzip unpacks mbox files from zip archives such as Google
// Takeout exports so they can be imported like plain mbox files.
package mboxzip

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wesm/mboxvault/internal/export"
	"github.com/wesm/mboxvault/internal/fileutil"
)

var ErrExtractLimitExceeded = errors.New("zip extraction limit exceeded")

// Limits guard against archives that expand far beyond their own size.
const (
	DefaultMaxEntryBytes int64 = 50 << 30  // per extracted mbox file
	DefaultMaxTotalBytes int64 = 200 << 30 // across the archive
)

type ExtractLimits struct {
	MaxEntryBytes int64
	MaxTotalBytes int64
}

const doneMarker = ".done"

// Resolve returns the mbox files to import for path. A .zip archive is
// extracted once into a directory under cacheDir keyed by the archive's
// identity; any other file is returned as is.
func Resolve(exportPath, cacheDir string, log *slog.Logger) ([]string, error) {
	if !strings.EqualFold(filepath.Ext(exportPath), ".zip") {
		return []string{exportPath}, nil
	}
	key, err := cacheKey(exportPath)
	if err != nil {
		return nil, err
	}
	return ExtractWithLimits(exportPath, filepath.Join(cacheDir, key), ExtractLimits{
		MaxEntryBytes: DefaultMaxEntryBytes,
		MaxTotalBytes: DefaultMaxTotalBytes,
	}, log)
}

// cacheKey identifies an archive by absolute path, size and modification
// time, so a replaced archive is extracted again.
func cacheKey(zipPath string) (string, error) {
	abs, err := filepath.Abs(zipPath)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat zip: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("zip %q is not a regular file", zipPath)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d", abs, fi.Size(), fi.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// ExtractWithLimits writes every .mbox or .mbx entry of zipPath into destDir
// and returns the extracted paths sorted. A previous complete extraction into
// destDir is reused. Extraction happens in a temporary sibling directory that
// is renamed into place only once all entries are written.
func ExtractWithLimits(zipPath, destDir string, limits ExtractLimits, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := os.Stat(filepath.Join(destDir, doneMarker)); err == nil {
		if files, err := findMboxFiles(destDir); err == nil && len(files) > 0 {
			log.Debug("reusing extracted archive", "zip", zipPath, "dir", destDir)
			return files, nil
		}
	}

	parentDir := filepath.Dir(destDir)
	if err := fileutil.MkdirPrivate(parentDir); err != nil {
		return nil, fmt.Errorf("create extract parent dir: %w", err)
	}
	tmpDir, err := os.MkdirTemp(parentDir, filepath.Base(destDir)+".tmp.")
	if err != nil {
		return nil, fmt.Errorf("create temp extract dir: %w", err)
	}
	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	seen := make(map[string]struct{})
	var totalWritten int64
	extracted := 0

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name, err := entryBaseName(zf.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid zip entry name %q: %w", zf.Name, err)
		}
		if !isMboxName(name) {
			continue
		}
		if limits.MaxEntryBytes > 0 && zf.UncompressedSize64 > uint64(limits.MaxEntryBytes) {
			return nil, fmt.Errorf("%w: zip entry %q too large (%d bytes > %d bytes)",
				ErrExtractLimitExceeded, zf.Name, zf.UncompressedSize64, limits.MaxEntryBytes)
		}

		limit := limits.MaxEntryBytes
		if limits.MaxTotalBytes > 0 {
			remaining := limits.MaxTotalBytes - totalWritten
			if remaining <= 0 {
				return nil, fmt.Errorf("%w: total extracted bytes exceeds limit (%d bytes)",
					ErrExtractLimitExceeded, limits.MaxTotalBytes)
			}
			if limit <= 0 || remaining < limit {
				limit = remaining
			}
		}

		outName := disambiguate(export.SanitizeFilename(name), seen)
		n, err := extractEntry(zf, filepath.Join(tmpDir, outName), limit)
		if err != nil {
			return nil, err
		}
		totalWritten += n
		extracted++
	}
	if extracted == 0 {
		return nil, fmt.Errorf("zip contains no .mbox or .mbx files")
	}
	if err := fileutil.WritePrivate(filepath.Join(tmpDir, doneMarker), []byte("ok\n")); err != nil {
		return nil, fmt.Errorf("write extraction marker: %w", err)
	}

	if err := os.RemoveAll(destDir); err != nil {
		return nil, fmt.Errorf("remove stale extract dir: %w", err)
	}
	if err := os.Rename(tmpDir, destDir); err != nil {
		return nil, fmt.Errorf("rename extracted dir into place: %w", err)
	}
	cleanupTmp = false
	log.Info("extracted mbox archive", "zip", zipPath, "files", extracted, "bytes", totalWritten)
	return findMboxFiles(destDir)
}

func extractEntry(zf *zip.File, outPath string, limit int64) (int64, error) {
	rc, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("open zip entry %q: %w", zf.Name, err)
	}
	defer rc.Close()

	w, err := fileutil.CreatePrivate(outPath, os.O_WRONLY|os.O_EXCL)
	if err != nil {
		return 0, fmt.Errorf("create extracted file: %w", err)
	}
	n, copyErr := CopyWithLimit(w, rc, limit)
	if closeErr := w.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(outPath)
		return 0, fmt.Errorf("extract %q: %w", zf.Name, copyErr)
	}
	return n, nil
}

func isMboxName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".mbox" || ext == ".mbx"
}

// entryBaseName reduces a zip entry name to its final path segment. Zip uses
// forward slashes but some producers write backslashes.
func entryBaseName(name string) (string, error) {
	base := path.Base(path.Clean(strings.ReplaceAll(name, "\\", "/")))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid base name %q", base)
	}
	return base, nil
}

// disambiguate makes name unique within seen by inserting a counter before
// the extension: "Inbox.mbox", "Inbox-2.mbox", ...
func disambiguate(name string, seen map[string]struct{}) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	out := name
	for i := 2; ; i++ {
		if _, dup := seen[strings.ToLower(out)]; !dup {
			break
		}
		out = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	seen[strings.ToLower(out)] = struct{}{}
	return out
}

// CopyWithLimit copies src to dst and fails with ErrExtractLimitExceeded if
// src holds more than max bytes. A max of zero or less means no limit.
func CopyWithLimit(dst io.Writer, src io.Reader, max int64) (int64, error) {
	if max <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, max))
	if err != nil {
		return n, err
	}
	if n < max {
		return n, nil
	}
	// Exactly max bytes so far; one more readable byte means overflow.
	var one [1]byte
	nr, er := io.ReadFull(src, one[:])
	if nr > 0 {
		return n, fmt.Errorf("%w: limit %d bytes", ErrExtractLimitExceeded, max)
	}
	if er != nil && !errors.Is(er, io.EOF) {
		return n, er
	}
	return n, nil
}

func findMboxFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if ent.Type().IsRegular() && isMboxName(ent.Name()) {
			files = append(files, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
