// Package auth resolves the credential the remote store needs. Silent
// resolution only uses what is cached on disk; interactive resolution may
// ask the user.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// CredentialsFile is the cache file name inside the data directory.
const CredentialsFile = "credentials.json"

// Provider hands out credentials to the sync engine.
type Provider interface {
	// Credential returns a usable credential. With interactive unset it
	// never talks to the user and fails with common.ErrAuth (or
	// common.ErrCredentialExpired) when nothing usable is cached.
	Credential(ctx context.Context, interactive bool) (models.Credential, error)

	// Invalidate drops the cached credential after the remote rejected it.
	Invalidate(ctx context.Context) error

	// Available reports whether a credential can be had silently.
	Available(ctx context.Context) bool
}

// Prompter asks the user for a credential.
type Prompter interface {
	Prompt(ctx context.Context) (models.Credential, error)
}

// FileProvider caches the credential in a 0600 JSON file.
type FileProvider struct {
	path     string
	prompter Prompter
	log      logging.Logger
	now      func() time.Time

	mu     sync.Mutex
	cached *models.Credential
	loaded bool

	group singleflight.Group
}

// NewFileProvider keeps its cache in dataDir. prompter may be nil, in which
// case interactive requests behave like silent ones.
func NewFileProvider(dataDir string, prompter Prompter, log logging.Logger) *FileProvider {
	return &FileProvider{
		path:     filepath.Join(dataDir, CredentialsFile),
		prompter: prompter,
		log:      log,
		now:      time.Now,
	}
}

// Seed stores cred unless it is empty. It is used for credentials given in
// the config file.
func (p *FileProvider) Seed(cred models.Credential) error {
	if cred.IsZero() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storeLocked(cred)
}

func (p *FileProvider) Credential(ctx context.Context, interactive bool) (models.Credential, error) {
	key := "silent"
	if interactive && p.prompter != nil {
		key = "interactive"
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.resolve(ctx, key == "interactive")
	})
	if err != nil {
		return models.Credential{}, err
	}
	return v.(models.Credential), nil
}

func (p *FileProvider) resolve(ctx context.Context, interactive bool) (models.Credential, error) {
	cred, err := p.cachedCredential()
	if err == nil {
		return cred, nil
	}
	if !interactive {
		return models.Credential{}, err
	}

	p.log.Info(ctx, "asking user for credentials", "reason", err)
	cred, err = p.prompter.Prompt(ctx)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", common.ErrAuth, err)
	}
	if cred.IsZero() {
		return models.Credential{}, fmt.Errorf("%w: empty credential", common.ErrAuth)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.storeLocked(cred); err != nil {
		// the credential still works for this run
		p.log.Warn(ctx, "could not cache credential", "error", err)
	}
	return cred, nil
}

// cachedCredential returns the cached credential, dropping it if it has
// expired.
func (p *FileProvider) cachedCredential() (models.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		cred, err := p.readFile()
		if err != nil {
			return models.Credential{}, err
		}
		p.cached = cred
		p.loaded = true
	}
	if p.cached == nil {
		return models.Credential{}, fmt.Errorf("%w: no cached credential", common.ErrAuth)
	}

	if expired(*p.cached, p.now()) {
		_ = p.removeLocked()
		return models.Credential{}, &common.CredentialExpiredError{Reason: "cached credential expired"}
	}
	return *p.cached, nil
}

func (p *FileProvider) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Info(ctx, "invalidating cached credential")
	return p.removeLocked()
}

func (p *FileProvider) Available(ctx context.Context) bool {
	_, err := p.Credential(ctx, false)
	return err == nil
}

func (p *FileProvider) readFile() (*models.Credential, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	var cred models.Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		return nil, fmt.Errorf("%w: corrupt credential cache: %v", common.ErrAuth, err)
	}
	if cred.IsZero() {
		return nil, nil
	}
	return &cred, nil
}

func (p *FileProvider) storeLocked(cred models.Credential) error {
	p.cached = &cred
	p.loaded = true

	b, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return filex.WriteFileAtomic(p.path, b, 0o600)
}

func (p *FileProvider) removeLocked() error {
	p.cached = nil
	p.loaded = true
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p.path, err)
	}
	return nil
}

// expired checks the explicit expiry and, for bearer tokens that are JWTs,
// the exp claim. The signature is not verified; only the remote can do that.
func expired(cred models.Credential, now time.Time) bool {
	if !cred.Expiry.IsZero() && !now.Before(cred.Expiry) {
		return true
	}
	if strings.Count(cred.AccessToken, ".") != 2 {
		return false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(cred.AccessToken, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}
