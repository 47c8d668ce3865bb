package assets

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	dirPosts     = "posts"
	dirThumbs    = "posts/thumbs"
	dirAddresses = "addresses"
	thumbWidth   = 320
	maxImageSize = 10 * 1024 * 1024 // 10 MB
)

var (
	ErrNotImage    = errors.New("unsupported image")
	ErrTooLarge    = errors.New("image exceeds size limit")
	ErrOutsideRoot = errors.New("asset path escapes asset root")
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// Disk stores uploaded images below a root directory. Post images get a
// thumbnail variant under posts/thumbs with the same file name.
type Disk struct {
	root string
}

func NewDisk(root string) (*Disk, error) {
	for _, dir := range []string{dirPosts, dirThumbs, dirAddresses} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create asset dir: %w", err)
		}
	}
	return &Disk{root: root}, nil
}

func (d *Disk) Root() string { return d.root }

// PostImagePath is the asset path of a stored post image.
func PostImagePath(name string) string { return path.Join(dirPosts, name) }

// PostThumbPath is the asset path of a post image's thumbnail.
func PostThumbPath(name string) string { return path.Join(dirThumbs, name) }

// AvatarPath is the asset path of a stored avatar.
func AvatarPath(name string) string { return path.Join(dirAddresses, name) }

// SavePostImage stores the upload and its thumbnail, returning the stored
// file name.
func (d *Disk) SavePostImage(original string, r io.Reader) (string, error) {
	name, raw, img, err := d.prepare(original, r)
	if err != nil {
		return "", err
	}
	if err := d.write(PostImagePath(name), raw); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := encode(&buf, thumbnail(img), filepath.Ext(name)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := d.write(PostThumbPath(name), buf.Bytes()); err != nil {
		return "", err
	}
	return name, nil
}

// SaveAvatar stores an avatar upload and returns the stored file name.
func (d *Disk) SaveAvatar(original string, r io.Reader) (string, error) {
	name, raw, _, err := d.prepare(original, r)
	if err != nil {
		return "", err
	}
	if err := d.write(AvatarPath(name), raw); err != nil {
		return "", err
	}
	return name, nil
}

// RemoveAsset deletes the file at the asset path. A missing file is not an
// error.
func (d *Disk) RemoveAsset(p string) error {
	if p == "" {
		return nil
	}
	clean := filepath.FromSlash(path.Clean(p))
	if !filepath.IsLocal(clean) {
		return ErrOutsideRoot
	}
	err := os.Remove(filepath.Join(d.root, clean))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (d *Disk) prepare(original string, r io.Reader) (string, []byte, image.Image, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if !allowedExt[ext] {
		return "", nil, nil, ErrNotImage
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxImageSize+1))
	if err != nil {
		return "", nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if len(raw) > maxImageSize {
		return "", nil, nil, ErrTooLarge
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", nil, nil, ErrNotImage
	}
	return uuid.NewString() + ext, raw, img, nil
}

func (d *Disk) write(p string, raw []byte) error {
	if err := os.WriteFile(filepath.Join(d.root, filepath.FromSlash(p)), raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func thumbnail(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() <= thumbWidth {
		return src
	}
	h := b.Dy() * thumbWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, thumbWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encode(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(w, img)
	case ".gif":
		return gif.Encode(w, img, nil)
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
	}
}
