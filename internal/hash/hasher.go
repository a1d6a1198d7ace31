package hash

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	stdhash "hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

const DefaultChunkSize = 32 * 1024 // 32KB buffer for streaming

// ErrDigest wraps every open or read failure returned by HashFile.
var ErrDigest = errors.New("digest failed")

// Algorithm names a content digest.
type Algorithm string

const (
	XXHash Algorithm = "xxhash"
	XXH3   Algorithm = "xxh3"
	BLAKE3 Algorithm = "blake3"
	MD5    Algorithm = "md5"
)

// Algorithms lists the supported digests.
var Algorithms = []Algorithm{XXHash, XXH3, BLAKE3, MD5}

// Valid reports whether a is a supported digest.
func (a Algorithm) Valid() bool {
	for _, known := range Algorithms {
		if a == known {
			return true
		}
	}
	return false
}

// Hasher computes content digests with a fixed algorithm and chunk size.
type Hasher struct {
	algo      Algorithm
	chunkSize int
}

// New returns a Hasher. An empty algorithm selects xxhash.
func New(algo Algorithm, chunkSize int) (*Hasher, error) {
	if algo == "" {
		algo = XXHash
	}
	if !algo.Valid() {
		return nil, fmt.Errorf("unknown digest algorithm %q", algo)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return &Hasher{algo: algo, chunkSize: chunkSize}, nil
}

// Algorithm returns the digest this Hasher produces.
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

func (h *Hasher) newHash() stdhash.Hash {
	switch h.algo {
	case XXH3:
		return xxh3.New()
	case BLAKE3:
		return blake3.New()
	case MD5:
		return md5.New()
	default:
		return xxhash.New()
	}
}

// HashFile streams the file through the configured digest.
// Any failure is returned wrapped in ErrDigest; the file is never modified.
func (h *Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open file: %w", ErrDigest, err)
	}
	defer file.Close()

	return h.hashReader(file)
}

func (h *Hasher) hashReader(r io.Reader) (string, error) {
	d := h.newHash()
	buf := make([]byte, h.chunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to read file: %w", ErrDigest, err)
		}
	}

	return hex.EncodeToString(d.Sum(nil)), nil
}

var defaultHasher = &Hasher{algo: XXHash, chunkSize: DefaultChunkSize}

// HashFile computes the xxHash of a file using streaming for large files
func HashFile(path string) (string, error) {
	return defaultHasher.HashFile(path)
}

// XXHashFunc is a custom hash function adapter for go-merkletree
// It converts []byte input to xxHash []byte output
func XXHashFunc(data []byte) ([]byte, error) {
	sum := xxhash.Sum64(data)

	// Convert uint64 to []byte in big-endian format
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sum)
	return buf, nil
}
