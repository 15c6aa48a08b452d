package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"govtender/internal/config"
)

// Local is a content-addressed store on disk. Objects are named by the hex
// sha256 of their content; several documents are referenced by a manifest
// which is itself stored by hash.
type Local struct {
	dir       string
	publicURL string
}

func NewLocal(cfg config.StorageConfig) (*Local, error) {
	err := os.MkdirAll(cfg.LocalDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("storage.NewLocal: %w", err)
	}
	return &Local{dir: cfg.LocalDir, publicURL: strings.TrimRight(cfg.PublicURL, "/")}, nil
}

func (s *Local) Dir() string {
	return s.dir
}

type manifestEntry struct {
	Name        string `json:"name"`
	Hash        string `json:"hash"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
}

func (s *Local) UploadImage(ctx context.Context, f File) (string, error) {
	hash, err := s.put(ctx, f.Data)
	if err != nil {
		return "", fmt.Errorf("storage.Local.UploadImage: %w", err)
	}
	return s.publicURL + "/" + hash, nil
}

func (s *Local) Pin(ctx context.Context, files []File) (string, error) {
	if len(files) == 0 {
		return "", errors.New("storage.Local.Pin: no files to pin")
	}
	if len(files) == 1 {
		hash, err := s.put(ctx, files[0].Data)
		if err != nil {
			return "", fmt.Errorf("storage.Local.Pin: %w", err)
		}
		return hash, nil
	}

	manifest := make([]manifestEntry, 0, len(files))
	for _, f := range files {
		hash, err := s.put(ctx, f.Data)
		if err != nil {
			return "", fmt.Errorf("storage.Local.Pin: %w", err)
		}
		manifest = append(manifest, manifestEntry{Name: f.Name, Hash: hash, ContentType: f.ContentType, Size: len(f.Data)})
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("storage.Local.Pin: %w", err)
	}
	hash, err := s.put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("storage.Local.Pin: %w", err)
	}
	return hash, nil
}

// put writes through a temp file and rename, so a reader never sees a
// partial object under its final name.
func (s *Local) put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	path := filepath.Join(s.dir, hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return hash, nil
}

var (
	_ ImageStore    = (*Local)(nil)
	_ DocumentStore = (*Local)(nil)
	_ ImageStore    = (*IPFS)(nil)
	_ DocumentStore = (*IPFS)(nil)
)
