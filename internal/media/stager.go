package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	logx "newsroom/pkg/logx"
)

// Stager moves image files between the staging zone (scheduled, not yet
// published) and permanent storage (attached to a live article).
//
// Every transfer is copy+verify+delete, never a move: a source file is only
// removed after its destination copy has been verified to exist and be
// non-empty. Re-running any step after a crash is therefore always safe.
type Stager struct {
	staging   string
	permanent string
	baseURL   string
	log       logx.Logger
}

type Config struct {
	StagingDir string
	MediaDir   string
	BaseURL    string // public prefix for permanent files, e.g. "/media"
}

func New(cfg Config, log logx.Logger) (*Stager, error) {
	staging := strings.TrimSpace(cfg.StagingDir)
	permanent := strings.TrimSpace(cfg.MediaDir)
	if staging == "" || permanent == "" {
		return nil, errors.New("media: staging_dir and media_dir are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	for _, dir := range []string{staging, permanent} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("media: create %s: %w", dir, err)
		}
	}
	return &Stager{
		staging:   staging,
		permanent: permanent,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		log:       log,
	}, nil
}

// StageForLater copies an uploaded file into the staging zone under a fresh
// token-prefixed name and returns the Ref describing it. The inbox original
// is left in place; the caller deletes it once this returns successfully.
func (s *Stager) StageForLater(up Upload) (Ref, error) {
	name := up.OriginalName
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(up.Path)
	}
	token := newToken()
	dst := filepath.Join(s.staging, refFileName(token, name))

	if err := copyVerify(up.Path, dst); err != nil {
		return Ref{}, fmt.Errorf("stage %q: %w", name, err)
	}

	s.log.Debug("staged upload", logx.String("original", name), logx.String("staged", dst))
	return Ref{
		Kind:         KindImage,
		Token:        token,
		StagedPath:   dst,
		OriginalName: name,
	}, nil
}

// Promote relocates a staged image into permanent storage.
//
// Source resolution order:
//  1. a copy already in permanent storage (promotion was retried; no-op)
//  2. the recorded staged path
//  3. a token or name match in the staging directory (staged path diverged)
//
// Returns resolved=false without error when no source can be located; the
// caller decides whether that skips the image or fails the article.
func (s *Stager) Promote(ref Ref) (loc Location, resolved bool, err error) {
	if ref.Kind != KindImage {
		return Location{}, false, fmt.Errorf("promote: cannot promote kind %q", ref.Kind)
	}

	// Already promoted: keep exactly one permanent copy and tidy any
	// leftover staging copy from a crash between copy and delete. The
	// permanent zone is matched by token only; original names are too
	// common to be trusted across articles.
	if name, ok := findMatch(s.permanent, ref.Token, ""); ok {
		s.releaseMatches(ref)
		return s.location(name), true, nil
	}

	src, ok := s.resolveStagedSource(ref)
	if !ok {
		return Location{}, false, nil
	}

	dstName := collisionFreeName(s.permanent, refFileName(ref.Token, ref.OriginalName))
	dst := filepath.Join(s.permanent, dstName)
	if err := copyVerify(src, dst); err != nil {
		return Location{}, true, fmt.Errorf("promote %q: %w", ref.OriginalName, err)
	}

	// Destination verified; the staging copy may go now.
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		s.log.Warn("staged copy not removed after promote", logx.String("path", src), logx.Err(err))
	}

	s.log.Debug("promoted media", logx.String("src", src), logx.String("dst", dst))
	return s.location(dstName), true, nil
}

// ReleaseStaged deletes the staging copy of a ref without promoting it.
// Used on cancellation. Missing files are not an error.
func (s *Stager) ReleaseStaged(ref Ref) error {
	removed := s.releaseMatches(ref)
	if removed > 0 {
		s.log.Debug("released staged media", logx.String("original", ref.OriginalName), logx.Int("removed", removed))
	}
	return nil
}

func (s *Stager) releaseMatches(ref Ref) int {
	removed := 0
	if ref.StagedPath != "" {
		if err := os.Remove(ref.StagedPath); err == nil {
			removed++
		}
	}
	// Also catch a staged copy whose recorded path diverged.
	for {
		name, ok := findMatch(s.staging, ref.Token, "")
		if !ok {
			break
		}
		if err := os.Remove(filepath.Join(s.staging, name)); err != nil {
			break
		}
		removed++
	}
	return removed
}

func (s *Stager) resolveStagedSource(ref Ref) (string, bool) {
	if ref.StagedPath != "" {
		if st, err := os.Stat(ref.StagedPath); err == nil && st.Mode().IsRegular() && st.Size() > 0 {
			return ref.StagedPath, true
		}
	}
	if name, ok := findMatch(s.staging, ref.Token, ref.OriginalName); ok {
		return filepath.Join(s.staging, name), true
	}
	return "", false
}

func (s *Stager) location(name string) Location {
	return Location{
		Path: filepath.Join(s.permanent, name),
		URL:  s.baseURL + "/" + name,
	}
}

// findMatch scans dir for a non-empty regular file carrying the ref token,
// falling back to the sanitized original name when the token finds nothing.
func findMatch(dir, token, originalName string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	byName := ""
	want := ""
	if strings.TrimSpace(originalName) != "" {
		want = sanitizeName(originalName)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		name := e.Name()
		if token != "" && strings.Contains(name, token) {
			return name, true
		}
		if want != "" && byName == "" && strings.Contains(name, want) {
			byName = name
		}
	}
	if byName != "" {
		return byName, true
	}
	return "", false
}

// copyVerify copies src to dst and confirms the destination exists and is
// non-empty before reporting success. The source is never touched.
func copyVerify(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file", src)
	}
	if st.Size() == 0 {
		return fmt.Errorf("%s: empty source file", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	got, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	if got.Size() == 0 {
		return fmt.Errorf("verify %s: destination is empty", dst)
	}
	return nil
}
