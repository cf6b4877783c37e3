// Package imagehost stores uploaded images and hands back a short reference
// that can later be turned into a URL.
package imagehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/xid"
)

// uploadMarker splits a Cloudinary delivery URL into host part and reference.
const uploadMarker = "/upload/"

// Host uploads images and resolves references back to URLs.
type Host interface {
	// Upload stores the image and returns its reference.
	Upload(ctx context.Context, file io.Reader, filename string) (string, error)
	// URL returns where a reference can be fetched from.
	URL(ref string) string
}

// Cloudinary keeps images in a Cloudinary account. References are the part
// of the delivery URL after "/upload/", e.g. "v1700000000/skillbarter/abc.png".
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
	base   string
}

// NewCloudinary builds a Host for the given account. folder may be empty.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("imagehost: configuring cloudinary: %w", err)
	}
	return &Cloudinary{
		cld:    cld,
		folder: folder,
		base:   "https://res.cloudinary.com/" + cloudName + "/image" + uploadMarker,
	}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, file io.Reader, filename string) (string, error) {
	res, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         c.folder,
		UniqueFilename: api.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("imagehost: uploading %s: %w", filename, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("imagehost: uploading %s: %s", filename, res.Error.Message)
	}
	return Reference(res.SecureURL)
}

func (c *Cloudinary) URL(ref string) string {
	if ref == "" || isAbsolute(ref) {
		return ref
	}
	return c.base + ref
}

// Reference extracts the stored reference from a Cloudinary delivery URL.
func Reference(deliveryURL string) (string, error) {
	_, ref, ok := strings.Cut(deliveryURL, uploadMarker)
	if !ok || ref == "" {
		return "", fmt.Errorf("imagehost: unexpected delivery url %q", deliveryURL)
	}
	return ref, nil
}

// Disk keeps images in a local directory served under urlPrefix. It is the
// default when no Cloudinary account is configured.
type Disk struct {
	dir       string
	urlPrefix string
}

// NewDisk creates dir if needed.
func NewDisk(dir, urlPrefix string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagehost: creating %s: %w", dir, err)
	}
	return &Disk{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/") + "/"}, nil
}

var errEmptyUpload = errors.New("imagehost: empty upload")

func (d *Disk) Upload(ctx context.Context, file io.Reader, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := xid.New().String() + strings.ToLower(filepath.Ext(filename))

	f, err := os.Create(filepath.Join(d.dir, ref))
	if err != nil {
		return "", fmt.Errorf("imagehost: creating %s: %w", ref, err)
	}
	n, err := io.Copy(f, file)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errEmptyUpload
	}
	if err != nil {
		_ = os.Remove(filepath.Join(d.dir, ref))
		return "", fmt.Errorf("imagehost: writing %s: %w", ref, err)
	}
	return ref, nil
}

func (d *Disk) URL(ref string) string {
	if ref == "" || isAbsolute(ref) {
		return ref
	}
	return d.urlPrefix + ref
}

// isAbsolute is true for references that are already URLs, such as the
// GitHub avatar a GitHub sign-up starts with.
func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
