// Package uploads stores user uploads (item images, payment proofs) on a local directory.
package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/kenamplan/backend/core"
)

const sniffLen = 3072

type localStore struct {
	fs      afero.Fs
	baseURL string
	maxSize int64
	logger  core.Logger
}

var _ core.FileStore = (*localStore)(nil) // interface compliance check

// NewLocalStore returns a FileStore writing into conf.Uploads.Dir.
func NewLocalStore(conf *core.Config, logger core.Logger) (core.FileStore, error) {
	if err := os.MkdirAll(conf.Uploads.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), conf.Uploads.Dir), conf, logger), nil
}

// NewStore returns a FileStore on top of fs; tests pass an afero.MemMapFs.
func NewStore(fs afero.Fs, conf *core.Config, logger core.Logger) core.FileStore {
	return &localStore{
		fs:      fs,
		baseURL: conf.Uploads.BaseURL,
		maxSize: conf.Uploads.MaxSize,
		logger:  logger,
	}
}

func (s *localStore) Save(_ context.Context, r io.Reader, filename string, allowed ...string) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.Wrap(err, "reading upload")
	}
	head = head[:n]
	if n == 0 {
		return "", core.NewFieldValidationError("file", "empty file")
	}

	mime := mimetype.Detect(head)
	if !isAllowed(mime, allowed) {
		return "", core.NewFieldValidationError("file", fmt.Sprintf("unsupported file type: %s", mime.String()))
	}

	name := strings.ReplaceAll(uuid.New().String(), "-", "") + extension(mime, filename)
	f, err := s.fs.Create(name)
	if err != nil {
		return "", errors.Wrap(err, "creating upload file")
	}

	// copy at most maxSize+1 bytes to detect oversized uploads
	src := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(src, s.maxSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		s.remove(name)
		return "", errors.Wrap(err, "writing upload file")
	case closeErr != nil:
		s.remove(name)
		return "", errors.Wrap(closeErr, "closing upload file")
	case written > s.maxSize:
		s.remove(name)
		return "", core.NewFieldValidationError("file", fmt.Sprintf("file is larger than %d bytes", s.maxSize))
	}
	return s.baseURL + "/" + name, nil
}

func (s *localStore) Delete(_ context.Context, p string) error {
	if p == "" {
		return nil
	}
	name := path.Base(strings.TrimPrefix(p, s.baseURL))
	if name == "/" || name == "." {
		return nil
	}
	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing upload")
	}
	return nil
}

func (s *localStore) remove(name string) {
	if err := s.fs.Remove(name); err != nil && s.logger != nil {
		s.logger.Warn("removing rejected upload", err, map[string]interface{}{"name": name})
	}
}

func isAllowed(mime *mimetype.MIME, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, ct := range allowed {
		if mime.Is(ct) {
			return true
		}
	}
	return false
}

// extension prefers the detected type's extension over the client supplied filename.
func extension(mime *mimetype.MIME, filename string) string {
	if ext := mime.Extension(); ext != "" {
		return ext
	}
	return strings.ToLower(path.Ext(filename))
}
