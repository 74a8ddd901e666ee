package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

// ErrCorruptSnapshot reports a snapshot that fails validation.
var ErrCorruptSnapshot = fmt.Errorf("%w: corrupt snapshot", apperrors.ErrIndexCorruption)

type Reader struct {
	file     *os.File
	filePath string
	header   Header
	dict     []DictEntry
	dec      *zstd.Decoder
}

// OpenReader validates the header and dictionary of the snapshot at path.
// A missing file yields an error matching fs.ErrNotExist.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorruptSnapshot, err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", ErrCorruptSnapshot, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, header.Version)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}
	size := info.Size()
	if header.DictOffset < int64(HeaderSize) || !within(header.DictOffset, header.DictSize, size) {
		return nil, fmt.Errorf("%w: bad dictionary bounds", ErrCorruptSnapshot)
	}
	if header.MetaOffset < int64(HeaderSize) || !within(header.MetaOffset, header.MetaSize, size) {
		return nil, fmt.Errorf("%w: bad metadata bounds", ErrCorruptSnapshot)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("%w: reading dictionary: %v", ErrCorruptSnapshot, err)
	}
	if crc32.ChecksumIEEE(dictBytes) != header.DictCRC {
		return nil, fmt.Errorf("%w: dictionary checksum mismatch", ErrCorruptSnapshot)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", ErrCorruptSnapshot, err)
	}
	if len(dict) != int(header.TermCount) {
		return nil, fmt.Errorf("%w: dictionary holds %d terms, header says %d", ErrCorruptSnapshot, len(dict), header.TermCount)
	}
	for i := range dict {
		if !within(dict[i].PostOffset, int64(dict[i].PostLen), size) {
			return nil, fmt.Errorf("%w: postings of %q out of bounds", ErrCorruptSnapshot, dict[i].Term)
		}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		dec:      dec,
	}, nil
}

// Search returns the postings of term, or nil when the snapshot does not
// hold it.
func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.postings(&r.dict[idx])
}

// Load reads the whole snapshot.
func (r *Reader) Load() (*Snapshot, error) {
	snap := &Snapshot{
		Generation: r.header.Generation,
		Entries:    make([]index.TermEntry, 0, len(r.dict)),
	}
	for i := range r.dict {
		postings, err := r.postings(&r.dict[i])
		if err != nil {
			return nil, err
		}
		snap.Entries = append(snap.Entries, index.TermEntry{Term: r.dict[i].Term, Postings: postings})
	}
	metaBlock, err := r.block(r.header.MetaOffset, int(r.header.MetaSize))
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if err := json.Unmarshal(metaBlock, &snap.Metadata); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata: %v", ErrCorruptSnapshot, err)
	}
	if snap.Metadata == nil {
		snap.Metadata = make(map[string]corpus.Metadata)
	}
	return snap, nil
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	r.dec.Close()
	return r.file.Close()
}

func (r *Reader) postings(e *DictEntry) (index.PostingList, error) {
	compressed := make([]byte, e.PostLen)
	if _, err := r.file.ReadAt(compressed, e.PostOffset); err != nil {
		return nil, fmt.Errorf("%w: reading postings of %q: %v", ErrCorruptSnapshot, e.Term, err)
	}
	if crc32.ChecksumIEEE(compressed) != e.CRC {
		return nil, fmt.Errorf("%w: checksum mismatch for %q", ErrCorruptSnapshot, e.Term)
	}
	raw, err := r.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing postings of %q: %v", ErrCorruptSnapshot, e.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(raw, &postings); err != nil {
		return nil, fmt.Errorf("%w: parsing postings of %q: %v", ErrCorruptSnapshot, e.Term, err)
	}
	return postings, nil
}

func (r *Reader) block(offset int64, size int) ([]byte, error) {
	compressed := make([]byte, size)
	if _, err := r.file.ReadAt(compressed, offset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	raw, err := r.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return raw, nil
}

// within reports whether [offset, offset+n) lies inside a file of size bytes.
func within(offset, n, size int64) bool {
	return offset >= 0 && n >= 0 && offset <= size && n <= size-offset
}

// IsNotExist reports whether err means no snapshot has been written yet.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
