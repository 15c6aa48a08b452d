package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"govtender/internal/config"
)

// IPFS uploads through the HTTP API of an IPFS node or pinning service.
type IPFS struct {
	client  *http.Client
	apiURL  string
	gateway string
	key     string
	secret  string
}

type IPFSOption func(*IPFS)

func WithIPFSClient(c *http.Client) IPFSOption {
	return func(s *IPFS) {
		s.client = c
	}
}

func NewIPFS(cfg config.StorageConfig, opts ...IPFSOption) *IPFS {
	s := &IPFS{
		client:  &http.Client{Timeout: 2 * time.Minute},
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		gateway: strings.TrimRight(cfg.GatewayURL, "/"),
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type addResult struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
}

func (s *IPFS) UploadImage(ctx context.Context, f File) (string, error) {
	hash, err := s.add(ctx, []File{f})
	if err != nil {
		return "", fmt.Errorf("storage.IPFS.UploadImage: %w", err)
	}
	return s.gateway + "/ipfs/" + hash, nil
}

func (s *IPFS) Pin(ctx context.Context, files []File) (string, error) {
	hash, err := s.add(ctx, files)
	if err != nil {
		return "", fmt.Errorf("storage.IPFS.Pin: %w", err)
	}
	return hash, nil
}

// add returns the hash of the single file, or of the wrapping directory when
// more than one file is sent. The API streams one JSON object per line and
// the directory comes last.
func (s *IPFS) add(ctx context.Context, files []File) (string, error) {
	if len(files) == 0 {
		return "", errors.New("no files to upload")
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return "", err
		}
		if _, err = part.Write(f.Data); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	query := url.Values{"pin": {"true"}, "cid-version": {"1"}}
	if len(files) > 1 {
		query.Set("wrap-with-directory", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/add?"+query.Encode(), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.key != "" {
		req.SetBasicAuth(s.key, s.secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ipfs api returned status %d", resp.StatusCode)
	}

	var last addResult
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var res addResult
		if err = json.Unmarshal(line, &res); err != nil {
			return "", fmt.Errorf("could not decode ipfs response: %w", err)
		}
		last = res
	}
	if err = scanner.Err(); err != nil {
		return "", err
	}
	if last.Hash == "" {
		return "", errors.New("ipfs api returned no hash")
	}
	return last.Hash, nil
}
