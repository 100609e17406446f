// Package dotenv keeps the L402 credential in a KEY=value file, the layout
// shell tooling and local development already use.
package dotenv

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/subosito/gotenv"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// Store reads and writes REPLIT_L402_TOKEN and REPLIT_L402_PREIMAGE in a
// dotenv file. The legacy combined REPLIT_L402 entry is read and removed on
// write. Other entries are preserved; comments are not.
type Store struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

// NewStore creates a store for the file at path.
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Store{path: path, log: log.WithFields(logger.Fields{"component": "dotenv_store"})}
}

// Location returns the file path.
func (s *Store) Location() string { return s.path }

// Load reads the credential. A missing file reads as empty.
func (s *Store) Load(_ context.Context) (models.L402Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read()
	if err != nil {
		return models.L402Credential{}, err
	}
	cred := models.L402Credential{
		Token:    env[constants.EnvL402Token],
		Preimage: env[constants.EnvL402Preimage],
	}
	if cred.Token == "" {
		if legacy, ok := models.ParseLegacyL402(env[constants.EnvL402Legacy]); ok {
			cred = legacy
		}
	}
	return cred, nil
}

// Save rewrites the file with the credential.
func (s *Store) Save(ctx context.Context, cred models.L402Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read()
	if err != nil {
		return err
	}
	delete(env, constants.EnvL402Legacy)
	env[constants.EnvL402Token] = cred.Token
	env[constants.EnvL402Preimage] = cred.Preimage

	if err := gotenv.Write(env, s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.log.Debug(ctx, "Wrote L402 credential", logger.Fields{"path": s.path})
	return nil
}

func (s *Store) read() (gotenv.Env, error) {
	env, err := gotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return gotenv.Env{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return env, nil
}

// Watch calls onChange whenever the file is written, replaced or removed,
// until ctx is done. The parent directory is watched so that editors which
// replace the file are noticed.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target, err := filepath.Abs(s.path)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					s.log.Info(ctx, "Credential file changed", logger.Fields{"path": s.path, "op": event.Op.String()})
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn(ctx, "Credential file watch error", logger.Fields{"error": err.Error()})
			}
		}
	}()
	return nil
}
