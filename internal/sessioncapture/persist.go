package sessioncapture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kuitang/gisportal/internal/crypto"
	"github.com/kuitang/gisportal/internal/obs"
	"github.com/kuitang/gisportal/internal/s3client"
)

// DefaultArtifactPath is where the session artifact is written.
const DefaultArtifactPath = "auth.json"

// DefaultMirrorKey is the object name used when mirroring the artifact to S3.
const DefaultMirrorKey = "auth.json"

// mirrorKeyPurpose names the HKDF purpose for sealing mirrored artifacts.
const mirrorKeyPurpose = "session-artifact"

// ErrEmptyState is returned when the exported storage state has no content.
var ErrEmptyState = errors.New("storage state is empty")

// Persister writes the session artifact. The file either holds a complete
// artifact or is untouched; a failed write never leaves a partial file.
type Persister struct {
	Path      string
	Mirror    *s3client.Client
	MirrorKey string
	// MirrorSecret, when set, seals the mirrored copy with a key derived from it.
	// The local file is always plaintext JSON, as browsers load it directly.
	MirrorSecret []byte
}

func (p *Persister) mirrorKey() string {
	if p.MirrorKey == "" {
		return DefaultMirrorKey
	}
	return p.MirrorKey
}

func (p *Persister) path() string {
	if p.Path == "" {
		return DefaultArtifactPath
	}
	return p.Path
}

// Persist validates state, mirrors it when configured, and only then commits
// Path. Nothing is committed once ctx is done or the mirror fails, so an
// aborted run leaves the previous artifact in place.
func (p *Persister) Persist(ctx context.Context, state []byte) error {
	if len(state) == 0 {
		return ErrEmptyState
	}
	if !json.Valid(state) {
		return errors.New("storage state is not valid JSON")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	path := p.path()
	staged, err := stageFile(path, state)
	if err != nil {
		return err
	}
	defer staged.discard()

	mirrored, err := p.mirror(ctx, state)
	if err != nil {
		return err
	}
	if err := staged.commit(ctx); err != nil {
		if mirrored {
			p.unmirror(ctx)
		}
		return err
	}
	obs.Pkg("sessioncapture").Info("session_persisted", "path", path, "bytes", len(state))
	return nil
}

func (p *Persister) mirror(ctx context.Context, state []byte) (bool, error) {
	if p.Mirror == nil {
		return false, nil
	}
	body, contentType := state, "application/json"
	if len(p.MirrorSecret) > 0 {
		sealed, err := crypto.Seal(crypto.DeriveKey(p.MirrorSecret, mirrorKeyPurpose, 1), state)
		if err != nil {
			return false, fmt.Errorf("seal session for s3: %w", err)
		}
		body, contentType = sealed, "application/octet-stream"
	}
	key := p.mirrorKey()
	if err := p.Mirror.PutObject(ctx, key, body, contentType); err != nil {
		return false, fmt.Errorf("mirror session to s3: %w", err)
	}
	obs.Pkg("sessioncapture").Info("session_mirrored",
		"bucket", p.Mirror.BucketName(),
		"key", p.Mirror.Key(key),
		"sealed", len(p.MirrorSecret) > 0,
	)
	return true, nil
}

// unmirror drops an object whose local commit failed. It runs detached from
// ctx, which is usually the reason the commit failed.
func (p *Persister) unmirror(ctx context.Context) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Mirror.DeleteObject(dctx, p.mirrorKey()); err != nil {
		obs.Pkg("sessioncapture").Warn("session_unmirror_failed", "key", p.Mirror.Key(p.mirrorKey()), "error", err)
	}
}

// Load reads a previously persisted artifact, falling back to the mirror when
// the local file is missing.
func (p *Persister) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path())
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) || p.Mirror == nil {
		return nil, fmt.Errorf("read session artifact: %w", err)
	}
	data, err = p.Mirror.GetObject(ctx, p.mirrorKey())
	if err != nil {
		return nil, fmt.Errorf("fetch session artifact from s3: %w", err)
	}
	if len(p.MirrorSecret) > 0 {
		data, err = crypto.Open(crypto.DeriveKey(p.MirrorSecret, mirrorKeyPurpose, 1), data)
		if err != nil {
			return nil, fmt.Errorf("open mirrored session artifact: %w", err)
		}
	}
	return data, nil
}

// stagedFile is a fully written, synced temp file next to its target.
type stagedFile struct {
	tmp, path string
	done      bool
}

func stageFile(path string, data []byte) (*stagedFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	staged := &stagedFile{tmp: tmp.Name(), path: path}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		staged.discard()
		return nil, fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		staged.discard()
		return nil, fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		staged.discard()
		return nil, fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Chmod(staged.tmp, 0o600); err != nil {
		staged.discard()
		return nil, fmt.Errorf("chmod temp artifact: %w", err)
	}
	return staged, nil
}

// commit renames the temp file over the target unless ctx is already done.
func (s *stagedFile) commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := os.Rename(s.tmp, s.path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	s.done = true
	return nil
}

// discard removes the temp file if it was never committed.
func (s *stagedFile) discard() {
	if !s.done {
		_ = os.Remove(s.tmp)
		s.done = true
	}
}
