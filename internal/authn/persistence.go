package authn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Persistence stores the session token between process runs.
type Persistence interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FilePersistence keeps the token in a JSON file readable only by the owner.
type FilePersistence struct {
	Path string
}

type persistedSession struct {
	Token string `json:"token"`
}

func (p FilePersistence) Load() (string, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}
	var s persistedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("decode session file: %w", err)
	}
	return s.Token, nil
}

func (p FilePersistence) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(persistedSession{Token: token})
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.Path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (p FilePersistence) Clear() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
