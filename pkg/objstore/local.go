package objstore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/agora/pkg/errdefs"
)

// Local stores objects as files under a base directory and signs URLs with
// an HMAC key. The signed URLs point back at this process's /objects/
// endpoint, which verifies them with VerifySignature.
type Local struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewLocal creates the base directory and mints a process-lifetime signing
// key. URLs signed by one process die with it, which is the right scope for
// a dev store.
func NewLocal(baseDir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Local{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}, nil
}

// PresignedUpload returns a PUT URL for the key.
func (l *Local) PresignedUpload(key, contentType string, ttl time.Duration) (*PresignedUpload, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	expires := l.now().Add(ttl)
	signed, err := l.signURL("PUT", key, expires)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{
		URL:     signed,
		Method:  "PUT",
		Headers: map[string]string{"Content-Type": contentType},
		Expires: expires,
	}, nil
}

// SignedDownload returns a GET URL for the key.
func (l *Local) SignedDownload(key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return l.signURL("GET", key, l.now().Add(ttl))
}

// Upload writes the object, replacing any previous content.
func (l *Local) Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	p := l.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("create object dir for %s: %w", key, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create object %s: %w", key, err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if size > 0 && written != size {
		os.Remove(p)
		return errdefs.Validationf("object %s truncated: declared %d bytes, wrote %d", key, size, written)
	}
	return nil
}

// Download opens the object.
func (l *Local) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(l.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NotFoundf("object not found: %s", key)
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the object; removing a missing object succeeds.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(l.objectPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// VerifySignature checks an incoming /objects/ request produced by signURL.
// The API's object handler calls this before touching the filesystem.
func (l *Local) VerifySignature(method, key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return errdefs.Validationf("malformed expiry %q", expires)
	}
	if l.now().After(time.Unix(exp, 0)) {
		return errdefs.Validationf("signed url for %s expired", key)
	}
	want := l.sign(method, key, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return errdefs.Validationf("bad signature for %s", key)
	}
	return nil
}

func (l *Local) signURL(method, key string, expires time.Time) (string, error) {
	exp := expires.Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", l.sign(method, key, exp))
	return fmt.Sprintf("%s/objects/%s?%s", l.baseURL, escapeKey(key), q.Encode()), nil
}

func (l *Local) sign(method, key string, expires int64) string {
	mac := hmac.New(sha256.New, l.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *Local) objectPath(key string) string {
	return filepath.Join(l.baseDir, filepath.FromSlash(key))
}

// escapeKey percent-encodes each segment while keeping the slashes that
// shape the key visible in the URL path.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// validateKey rejects keys that could escape the base directory.
func validateKey(key string) error {
	if key == "" {
		return errdefs.Validationf("empty object key")
	}
	if strings.HasPrefix(key, "/") {
		return errdefs.Validationf("object key must be relative: %s", key)
	}
	clean := path.Clean(key)
	if clean != key || strings.Contains(key, "..") {
		return errdefs.Validationf("object key not in canonical form: %s", key)
	}
	return nil
}
