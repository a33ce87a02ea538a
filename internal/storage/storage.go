// Package storage persists uploaded files and returns a URL clients can
// fetch them from.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

type Uploader interface {
	UploadBytes(ctx context.Context, folder, filename string, b []byte) (string, error)
}

// LocalUploader writes under root and serves from baseURL + "/media".
type LocalUploader struct {
	root    string
	baseURL string
}

func NewLocalUploader(root, baseURL string) *LocalUploader {
	return &LocalUploader{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (u *LocalUploader) UploadBytes(_ context.Context, folder, filename string, b []byte) (string, error) {
	name := uniqueName(filename)
	dir := filepath.Join(u.root, filepath.FromSlash(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return u.baseURL + "/media/" + path.Join(folder, name), nil
}

type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryUploader builds an uploader from a cloudinary:// URL.
func NewCloudinaryUploader(cloudinaryURL string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld}, nil
}

func (u *CloudinaryUploader) UploadBytes(ctx context.Context, folder, filename string, b []byte) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, bytes.NewReader(b), uploader.UploadParams{
		Folder:       folder,
		PublicID:     strings.TrimSuffix(uniqueName(filename), filepath.Ext(filename)),
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload rejected: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

// uniqueName prefixes a sanitized base name with a random id.
func uniqueName(filename string) string {
	base := filepath.Base(filepath.Clean("/" + filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	if base == "" || base == "." || base == "_" {
		base = "upload"
	}
	return uuid.NewString()[:8] + "_" + base
}
