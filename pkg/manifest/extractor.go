package manifest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const logoFileName = "logo.png"

// ExtractionError reports an unreadable archive or an absent/unparseable
// manifest. Staging is aborted when it occurs; scratch cleanup stays with
// the caller.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract plugin archive %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StagedManifest is the parsed result of staging one archive
type StagedManifest struct {
	PluginID    string
	Name        string
	Version     string
	PluginType  string
	Description string
	// Document is the resolved document text. When the manifest declared a
	// path that could not be read, the raw value is carried as-is.
	Document string
	// Logo is the published logo's name inside the public logo directory,
	// or empty. It is the value the image endpoint serves by.
	Logo string
}

// Extractor unpacks plugin archives and parses their manifests
type Extractor struct {
	logoDir string
}

// NewExtractor creates an extractor publishing logos into logoDir
func NewExtractor(logoDir string) (*Extractor, error) {
	if err := os.MkdirAll(logoDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logo directory: %w", err)
	}
	return &Extractor{logoDir: logoDir}, nil
}

// Extract unpacks archivePath into scratchDir and parses the plugin's
// declared metadata. scratchDir is unique to this call; the caller must
// guarantee it did not pre-exist and must remove it on every exit path.
// code namespaces the published logo file.
func (e *Extractor) Extract(archivePath, scratchDir, code string) (*StagedManifest, error) {
	if err := unzip(archivePath, scratchDir); err != nil {
		return nil, &ExtractionError{Archive: archivePath, Err: err}
	}

	m, err := LoadManifestFromDir(scratchDir)
	if err != nil {
		return nil, &ExtractionError{Archive: archivePath, Err: err}
	}

	staged := &StagedManifest{
		PluginID:    m.PluginID,
		Name:        m.Name,
		Version:     m.Version,
		PluginType:  m.PluginType,
		Description: m.Description,
		Document:    resolveDocument(scratchDir, m.Document),
	}

	logo, err := e.publishLogo(scratchDir, code)
	if err != nil {
		return nil, &ExtractionError{Archive: archivePath, Err: err}
	}
	staged.Logo = logo

	return staged, nil
}

// resolveDocument substitutes the document file's content when the manifest
// declared a readable path inside the package; otherwise the raw value is
// reported as-is rather than failing the whole extraction.
func resolveDocument(root, doc string) string {
	if doc == "" {
		return ""
	}

	path, err := securePath(root, doc)
	if err != nil {
		return doc
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return doc
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return doc
	}
	return string(content)
}

// publishLogo copies logo.png from the package root into the public logo
// directory under the staging code. Returns the published file name, which
// callers pass back to the image endpoint, or "" when the package has no
// logo.
func (e *Extractor) publishLogo(root, code string) (string, error) {
	src := filepath.Join(root, logoFileName)
	if _, err := os.Stat(src); err != nil {
		return "", nil
	}

	name := code + ".png"
	dest := filepath.Join(e.logoDir, name)
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open logo: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create public logo: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("failed to copy logo: %w", err)
	}

	return name, nil
}

// unzip extracts a zip archive into destDir, rejecting entries that would
// escape it.
func unzip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		dest, err := securePath(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
		}

		if err := extractFile(f, dest); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}

	return nil
}

// securePath joins name onto root and verifies the result stays inside root
func securePath(root, name string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(name))
	if dest != filepath.Clean(root) && !strings.HasPrefix(dest, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return dest, nil
}
