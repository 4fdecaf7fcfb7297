package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/hashdrive/hashdrive/internal/cid"
)

// CAS is a local content-addressed blob directory, used when no storage
// node is configured (offline/dev sessions) and by tests. Blobs are
// zstd-compressed on disk and verified against their hash on read.
type CAS struct {
	dir string

	encoderPool sync.Pool
	decoderPool sync.Pool
}

// NewCAS creates a content-addressed store rooted at dir.
func NewCAS(dir string) (*CAS, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	c := &CAS{dir: dir}
	c.encoderPool = sync.Pool{
		New: func() interface{} {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			return enc
		},
	}
	c.decoderPool = sync.Pool{
		New: func() interface{} {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}
	return c, nil
}

// Put stores data under its sha256 content id. Identical content is stored
// once; a second Put of the same bytes returns immediately.
func (c *CAS) Put(_ context.Context, data []byte) (string, error) {
	id := cid.Sum(data)
	path := c.blobPath(id)

	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	compressed := c.compress(data)

	// Atomic write via unique temp file. Identical content ids carry
	// identical bytes, so the last rename winning is harmless.
	tmp, err := os.CreateTemp(c.dir, ".blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename blob: %w", err)
	}

	return id, nil
}

// Get retrieves and verifies the blob for contentID.
func (c *CAS) Get(_ context.Context, contentID string) ([]byte, error) {
	id := cid.Normalize(contentID)

	compressed, err := os.ReadFile(c.blobPath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}

	data, err := c.decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress blob %s: %w", id, err)
	}
	if cid.Sum(data) != id {
		return nil, fmt.Errorf("blob %s failed hash verification", id)
	}
	return data, nil
}

// Has reports whether contentID is stored locally.
func (c *CAS) Has(_ context.Context, contentID string) (bool, error) {
	_, err := os.Stat(c.blobPath(cid.Normalize(contentID)))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *CAS) blobPath(id string) string {
	return filepath.Join(c.dir, id)
}

func (c *CAS) compress(data []byte) []byte {
	enc := c.encoderPool.Get().(*zstd.Encoder)
	defer c.encoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func (c *CAS) decompress(data []byte) ([]byte, error) {
	dec := c.decoderPool.Get().(*zstd.Decoder)
	defer c.decoderPool.Put(dec)
	return dec.DecodeAll(data, nil)
}
