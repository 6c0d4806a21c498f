// Package sign integrates with the remote signing service. A Session is
// obtained once per publish batch and reused for every file signed in it;
// any non-2xx response from the service aborts the run.
package sign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
)

// Mode selects the signature kind requested from the service.
type Mode string

const (
	// ModeDetach produces a sidecar signature next to the file.
	ModeDetach Mode = "detach-sign"
	// ModeClear rewrites the file as a clear-signed document.
	ModeClear Mode = "clear-sign"
)

// DetachedSuffix is appended to a file's name for its detached signature.
const DetachedSuffix = ".asc"

// Session is a bearer token scoped to one signing batch. It is never
// persisted; when the service rejects a call the whole run aborts.
type Session struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// Credentials authenticate a signing batch against the service.
type Credentials struct {
	Username string
	Password string
	Endpoint string
	KeyID    string
}

// Configured reports whether signing was requested at all.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != "" && c.Endpoint != ""
}

// Authenticate exchanges credentials for a batch-scoped bearer token via
// POST {endpoint}/token.
func Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}

	endpoint := strings.TrimRight(creds.Endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/token", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{Timeout: 5 * time.Minute}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeSignService, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeSignService, "read token response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.ErrCodeSignService, "authentication rejected").
			WithContext("status", resp.StatusCode)
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.Token == "" {
		return nil, pkgerrors.New(pkgerrors.ErrCodeSignService, "token response is malformed")
	}

	logging.Info("sign", "authenticated to signing service", "endpoint", endpoint)
	return &Session{
		endpoint:   endpoint,
		token:      tokenResp.Token,
		httpClient: httpClient,
	}, nil
}

// Sign uploads the file for signing via POST {endpoint}/sign?keyid&sign_type
// and writes the response body to the resulting path: a .asc sidecar for
// detached signatures, the file itself for clear-signing. It returns the
// path written.
func (s *Session) Sign(ctx context.Context, filePath, keyid string, mode Mode) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	params := url.Values{}
	params.Set("keyid", keyid)
	params.Set("sign_type", string(mode))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/sign?"+params.Encode(), &buf)
	if err != nil {
		return "", fmt.Errorf("create sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	logging.Info("sign", "signing file", "path", filePath, "mode", string(mode))
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeSignService, "sign request failed").
			WithContext("path", filePath)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeSignService, "read signature response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", pkgerrors.New(pkgerrors.ErrCodeSignService, "signing rejected").
			WithContext("path", filePath).
			WithContext("status", resp.StatusCode)
	}

	outPath := filePath
	if mode == ModeDetach {
		outPath = filePath + DetachedSuffix
	}
	if err := os.WriteFile(outPath, body, 0o644); err != nil {
		return "", fmt.Errorf("write signature %s: %w", outPath, err)
	}
	return outPath, nil
}
