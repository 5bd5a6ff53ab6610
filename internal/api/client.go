// internal/api/client.go
package api

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bngseg/collector/pkg/core"
)

// Client handles communication with the dataset server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Healthcheck checks if the dataset server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// UploadSession archives a session folder as tar.gz and sends it to the
// dataset server.
func (c *Client) UploadSession(folder string, meta core.UploadMetadata) error {
	st, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("failed to open session folder: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("session folder %s is not a directory", folder)
	}

	name := meta.SessionName
	if name == "" {
		name = filepath.Base(folder)
	}
	filename := name + ".tar.gz"

	// Create multipart form
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Write form fields and archive in goroutine
	errCh := make(chan error, 1)
	go func() {
		err := func() error {
			_ = writer.WriteField("secret", c.apiKey)
			_ = writer.WriteField("filename", filename)
			_ = writer.WriteField("sessionName", name)
			_ = writer.WriteField("map", meta.Map)
			_ = writer.WriteField("annotatedMap", meta.AnnotatedMap)
			_ = writer.WriteField("carModel", meta.CarModel)
			_ = writer.WriteField("pairCount", strconv.Itoa(meta.PairCount))

			part, err := writer.CreateFormFile("file", filename)
			if err != nil {
				return fmt.Errorf("failed to create form file: %w", err)
			}
			if err := writeArchive(part, folder, name); err != nil {
				return fmt.Errorf("failed to archive session: %w", err)
			}
			return writer.Close()
		}()
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/sessions/add", pr)
	if err != nil {
		pr.Close()
		<-errCh
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check goroutine error
	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

// writeArchive writes the regular files under folder to w as a gzipped
// tarball rooted at prefix/.
func writeArchive(w io.Writer, folder, prefix string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
