package importer

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// materialize turns a source reference into a local file path. Local
// paths pass through; http(s) and ftp URLs are downloaded into tempDir.
func materialize(ctx context.Context, source, tempDir string) (string, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		if _, statErr := os.Stat(source); statErr != nil {
			return "", eris.Wrapf(statErr, "importer: source %q", source)
		}
		return source, nil
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "importer: create temp dir")
	}
	dest := filepath.Join(tempDir, filepath.Base(u.Path))

	switch u.Scheme {
	case "http", "https":
		return dest, downloadHTTP(ctx, source, dest)
	case "ftp":
		return dest, downloadFTP(ctx, u, dest)
	default:
		return "", eris.Errorf("importer: unsupported scheme %q", u.Scheme)
	}
}

// downloadHTTP fetches the URL to dest, retrying transient failures
// with exponential backoff.
func downloadHTTP(ctx context.Context, rawURL, dest string) error {
	client := &http.Client{Timeout: 5 * time.Minute}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "importer: create request"))
		}

		resp, err := client.Do(req)
		if err != nil {
			zap.L().Warn("import download failed, retrying",
				zap.String("url", rawURL),
				zap.Error(err),
			)
			return err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return eris.Errorf("importer: http %d from %s", resp.StatusCode, rawURL)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(eris.Errorf("importer: http %d from %s", resp.StatusCode, rawURL))
		}

		return writeFile(dest, resp.Body)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return eris.Wrap(err, "importer: download")
	}
	return nil
}

// downloadFTP retrieves the file with an anonymous login.
func downloadFTP(ctx context.Context, u *url.URL, dest string) error {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return eris.New("importer: ftp url has no file path")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "importer: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "importer: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return eris.Wrap(err, "importer: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	return writeFile(dest, resp)
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "importer: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, r); err != nil {
		return eris.Wrap(err, "importer: write file")
	}
	return nil
}
