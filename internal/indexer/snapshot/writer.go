// Package snapshot persists the posting store between restarts: a
// point-in-time snapshot file plus a journal of the changes applied since.
//
// Snapshot layout: a 64-byte little-endian header, one zstd-compressed JSON
// posting block per term, a zstd-compressed JSON metadata block and a JSON
// dictionary mapping each term to its block. The header records the
// dictionary checksum and every block carries its own CRC32.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FileName             = "index.spdx"
)

// Header is the fixed-size header at the start of a snapshot file.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	Generation uint64
	DictOffset int64
	DictSize   int64
	MetaOffset int64
	MetaSize   int64
	DictCRC    uint32
}

// DictEntry locates the compressed posting block of one term.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
	CRC        uint32 `json:"c"`
}

// Snapshot is the persisted state of the index at one generation.
type Snapshot struct {
	Generation uint64
	Entries    []index.TermEntry
	Metadata   map[string]corpus.Metadata
}

type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Path returns the location of the current snapshot file.
func (w *Writer) Path() string {
	return filepath.Join(w.dataDir, FileName)
}

// Write replaces the snapshot atomically: it writes a .tmp file, syncs it
// and renames it over the previous one. Entries must be sorted by term.
func (w *Writer) Write(snap *Snapshot) (string, error) {
	finalPath := w.Path()
	tmpPath := finalPath + ".tmp"
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return "", fmt.Errorf("creating compressor: %w", err)
	}
	defer enc.Close()

	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("writing header placeholder: %w", err)
	}
	offset := int64(HeaderSize)
	dict := make([]DictEntry, 0, len(snap.Entries))
	docIDs := make(map[string]struct{})
	for i, entry := range snap.Entries {
		if i > 0 && snap.Entries[i-1].Term >= entry.Term {
			return "", fmt.Errorf("snapshot entries out of order at %q", entry.Term)
		}
		raw, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		block := enc.EncodeAll(raw, nil)
		if _, err := f.Write(block); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset,
			PostLen:    len(block),
			DocFreq:    len(entry.Postings),
			CRC:        crc32.ChecksumIEEE(block),
		})
		offset += int64(len(block))
		for _, p := range entry.Postings {
			docIDs[p.DocID] = struct{}{}
		}
	}

	metaRaw, err := json.Marshal(snap.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}
	metaBlock := enc.EncodeAll(metaRaw, nil)
	if _, err := f.Write(metaBlock); err != nil {
		return "", fmt.Errorf("writing metadata: %w", err)
	}
	metaOffset := offset
	offset += int64(len(metaBlock))

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(dict)),
		DocCount:   uint32(len(docIDs)),
		CreatedAt:  time.Now().Unix(),
		Generation: snap.Generation,
		DictOffset: offset,
		DictSize:   int64(len(dictData)),
		MetaOffset: metaOffset,
		MetaSize:   int64(len(metaBlock)),
		DictCRC:    crc32.ChecksumIEEE(dictData),
	}
	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return finalPath, nil
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], h.Generation)
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictOffset))
	binary.LittleEndian.PutUint32(b[40:44], uint32(h.DictSize))
	binary.LittleEndian.PutUint64(b[44:52], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint32(b[52:56], uint32(h.MetaSize))
	binary.LittleEndian.PutUint32(b[56:60], h.DictCRC)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[16:24])),
		Generation: binary.LittleEndian.Uint64(b[24:32]),
		DictOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		DictSize:   int64(binary.LittleEndian.Uint32(b[40:44])),
		MetaOffset: int64(binary.LittleEndian.Uint64(b[44:52])),
		MetaSize:   int64(binary.LittleEndian.Uint32(b[52:56])),
		DictCRC:    binary.LittleEndian.Uint32(b[56:60]),
	}
}
