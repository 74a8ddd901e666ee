package snapshot

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Generation: 7,
		Entries: []index.TermEntry{
			{Term: "elettron", Postings: index.PostingList{
				{DocID: "A", Zone: index.ZoneBody, Frequency: 1, Positions: []int{1}, DocLength: 4},
			}},
			{Term: "fattur", Postings: index.PostingList{
				{DocID: "A", Zone: index.ZoneTitle, Frequency: 1, Positions: []int{0}, DocLength: 4},
				{DocID: "B", Zone: index.ZoneBody, Frequency: 2, Positions: []int{0, 3}, DocLength: 5},
			}},
		},
		Metadata: map[string]corpus.Metadata{
			"A": {Category: "invoices", Status: corpus.StatusActive},
			"B": {Category: "notes", Source: "import", Status: corpus.StatusActive},
		},
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	path, err := w.Write(sampleSnapshot())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file renamed away")

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint64(7), r.Header().Generation)
	assert.Equal(t, 2, r.Terms())
	assert.Equal(t, uint32(2), r.DocCount())

	list, err := r.Search("fattur")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []int{0, 3}, list[1].Positions)

	missing, err := r.Search("zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snap, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), snap)
}

func TestLoadedSnapshotRestoresStore(t *testing.T) {
	dir := t.TempDir()
	path, err := NewWriter(dir).Write(sampleSnapshot())
	require.NoError(t, err)
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	snap, err := r.Load()
	require.NoError(t, err)

	s := index.NewStore()
	require.NoError(t, s.Load(snap.Entries))
	assert.Equal(t, 2, s.DocCount())
	assert.Len(t, s.PostingsFor("fattur"), 2)
}

func TestWriteRejectsUnsortedEntries(t *testing.T) {
	snap := sampleSnapshot()
	snap.Entries[0], snap.Entries[1] = snap.Entries[1], snap.Entries[0]
	_, err := NewWriter(t.TempDir()).Write(snap)
	assert.Error(t, err)
}

func TestOpenReaderMissingFile(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), FileName))
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestCorruptionIsDetected(t *testing.T) {
	cases := map[string]func(data []byte, h Header) []byte{
		"bad magic": func(data []byte, _ Header) []byte {
			data[0] ^= 0xff
			return data
		},
		"dictionary flipped": func(data []byte, h Header) []byte {
			data[h.DictOffset+2] ^= 0x01
			return data
		},
		"truncated": func(data []byte, _ Header) []byte {
			return data[:HeaderSize/2]
		},
		"dictionary size past end of file": func(data []byte, _ Header) []byte {
			binary.LittleEndian.PutUint32(data[40:44], 0xfffffff0)
			return data
		},
		"metadata size past end of file": func(data []byte, _ Header) []byte {
			binary.LittleEndian.PutUint32(data[52:56], 0xfffffff0)
			return data
		},
		"dictionary offset past end of file": func(data []byte, _ Header) []byte {
			binary.LittleEndian.PutUint64(data[32:40], 1<<62)
			return data
		},
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path, err := NewWriter(dir).Write(sampleSnapshot())
			require.NoError(t, err)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			h := decodeHeader(data[:HeaderSize])
			require.NoError(t, os.WriteFile(path, corrupt(data, h), 0o644))

			_, err = OpenReader(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptSnapshot))
			assert.True(t, errors.Is(err, apperrors.ErrIndexCorruption))
		})
	}
}

func TestPostingBlockChecksum(t *testing.T) {
	dir := t.TempDir()
	path, err := NewWriter(dir).Write(sampleSnapshot())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Search("elettron")
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
	_, err = r.Load()
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func upsert(gen uint64, id string) Record {
	return Record{Generation: gen, Op: OpUpsert, ID: id, Doc: &corpus.Document{ID: id, Title: "t " + id, Status: corpus.StatusActive}}
}

func collect(t *testing.T, j *Journal, after uint64) []Record {
	t.Helper()
	var out []Record
	_, err := j.Replay(after, func(r Record) error {
		out = append(out, r)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestJournalReplayAfterGeneration(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)
	require.NoError(t, j.Append(upsert(1, "a")))
	require.NoError(t, j.Append(upsert(2, "b")))
	require.NoError(t, j.Append(Record{Generation: 3, Op: OpRemove, ID: "a"}))
	require.NoError(t, j.Close())

	j, err = OpenJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	all := collect(t, j, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[1].Doc.ID)
	assert.Equal(t, OpRemove, all[2].Op)
	assert.Nil(t, all[2].Doc)

	tail := collect(t, j, 2)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Generation)
}

func TestJournalReplayStopsAtTornRecord(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)
	require.NoError(t, j.Append(upsert(1, "a")))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(filepath.Join(dir, JournalName), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"g":2,"op":"ups`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j, err = OpenJournal(dir)
	require.NoError(t, err)
	defer j.Close()
	recs := collect(t, j, 0)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
}

func TestJournalReplayPropagatesApplyErrors(t *testing.T) {
	j, err := OpenJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Append(upsert(1, "a")))
	require.NoError(t, j.Append(upsert(2, "b")))

	boom := errors.New("boom")
	n, err := j.Replay(0, func(r Record) error {
		if r.ID == "b" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestJournalCompactKeepsNewerRecords(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)
	defer j.Close()
	for gen := uint64(1); gen <= 4; gen++ {
		require.NoError(t, j.Append(upsert(gen, "d")))
	}
	require.NoError(t, j.Compact(3))

	recs := collect(t, j, 0)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(4), recs[0].Generation)

	require.NoError(t, j.Append(upsert(5, "e")))
	require.NoError(t, j.Sync())
	recs = collect(t, j, 0)
	require.Len(t, recs, 2)
	assert.Equal(t, "e", recs[1].ID)
}
