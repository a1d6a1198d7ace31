package manifest

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	mt "github.com/txaty/go-merkletree"

	"dupmover/internal/hash"
	"dupmover/internal/record"
)

const Generator = "dupmover"

// Manifest is the durable account of one run: what was moved where, and a
// merkle root over those records so later edits can be detected.
type Manifest struct {
	Generator       string             `json:"generator"`
	RunID           string             `json:"run_id"`
	Created         time.Time          `json:"created"`
	Root            string             `json:"root"`
	DuplicateFolder string             `json:"duplicate_folder"`
	Digest          hash.Algorithm     `json:"digest"`
	MerkleRoot      string             `json:"merkle_root"`
	Records         []record.Duplicate `json:"records"`
}

type leaf []byte

func (l leaf) Serialize() ([]byte, error) {
	return l, nil
}

// Leaf is the merkle leaf content for a record.
func Leaf(rec record.Duplicate) []byte {
	return []byte(rec.Digest + "|" + rec.Duplicate + "|" + rec.MovedTo + "|" + strconv.FormatBool(rec.Moved))
}

// Build assembles a manifest and computes its merkle root.
func Build(runID, root, folder string, algo hash.Algorithm, records []record.Duplicate) (*Manifest, error) {
	if records == nil {
		records = []record.Duplicate{}
	}

	merkleRoot, err := RootHash(records)
	if err != nil {
		return nil, err
	}

	return &Manifest{
		Generator:       Generator,
		RunID:           runID,
		Created:         time.Now().UTC(),
		Root:            root,
		DuplicateFolder: folder,
		Digest:          algo,
		MerkleRoot:      merkleRoot,
		Records:         records,
	}, nil
}

// RootHash computes the merkle root over records in order.
// The tree needs at least two leaves; smaller sets are hashed directly.
func RootHash(records []record.Duplicate) (string, error) {
	switch len(records) {
	case 0:
		sum, err := hash.XXHashFunc([]byte("empty-manifest"))
		if err != nil {
			return "", fmt.Errorf("failed to create empty manifest hash: %w", err)
		}
		return hex.EncodeToString(sum), nil
	case 1:
		sum, err := hash.XXHashFunc(Leaf(records[0]))
		if err != nil {
			return "", fmt.Errorf("failed to hash record: %w", err)
		}
		return hex.EncodeToString(sum), nil
	}

	blocks := make([]mt.DataBlock, len(records))
	for i, rec := range records {
		blocks[i] = leaf(Leaf(rec))
	}

	tree, err := mt.New(&mt.Config{
		HashFunc: hash.XXHashFunc,
		Mode:     mt.ModeTreeBuild,
	}, blocks)
	if err != nil {
		return "", fmt.Errorf("failed to build merkle tree: %w", err)
	}
	return hex.EncodeToString(tree.Root), nil
}

// Intact reports whether the stored merkle root still matches the records.
func (m *Manifest) Intact() (bool, error) {
	got, err := RootHash(m.Records)
	if err != nil {
		return false, err
	}
	return got == m.MerkleRoot, nil
}

// Moved returns how many records describe a completed move.
func (m *Manifest) Moved() int {
	n := 0
	for _, rec := range m.Records {
		if rec.Moved {
			n++
		}
	}
	return n
}
