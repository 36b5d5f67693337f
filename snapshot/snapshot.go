package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/pdbcache/blobstore"
	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/resource"
	"github.com/hupe1980/pdbcache/table"
)

const (
	// Prefix is the blob name prefix of every snapshot.
	Prefix = "snapshots/"

	manifestName = "MANIFEST"

	// FormatVersion is the manifest format written by Export.
	FormatVersion = 1

	// DefaultBlockSize is the number of ids per chunk.
	DefaultBlockSize int64 = 1000
)

var (
	// ErrNotFound is returned when a snapshot has no manifest.
	ErrNotFound = errors.New("snapshot: not found")

	// ErrChecksum is returned when a chunk does not match its manifest entry.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
)

// Manifest describes a complete snapshot.
type Manifest struct {
	Version     int          `json:"version"`
	ID          string       `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	BlockSize   int64        `json:"block_size"`
	Compression string       `json:"compression"`
	Records     int          `json:"records"`
	MinID       int64        `json:"min_id"`
	MaxID       int64        `json:"max_id"`
	Blocks      []BlockEntry `json:"blocks"`
}

// BlockEntry describes one chunk.
type BlockEntry struct {
	Key      int64  `json:"key"`
	MinID    int64  `json:"min_id"`
	MaxID    int64  `json:"max_id"`
	Records  int    `json:"records"`
	Bytes    int    `json:"bytes"`
	Checksum uint64 `json:"checksum"`
}

// Empty reports whether the snapshot holds no records.
func (m Manifest) Empty() bool { return m.Records == 0 }

type options struct {
	blockSize  int64
	compressor codec.Compressor
	rc         *resource.Controller
	now        func() time.Time
}

// Option configures Export and Import.
type Option func(*options)

// WithBlockSize sets the number of ids per chunk.
func WithBlockSize(n int64) Option {
	return func(o *options) { o.blockSize = n }
}

// WithCompressor sets the chunk compressor. Import reads the compressor from
// the manifest and ignores this option.
func WithCompressor(c codec.Compressor) Option {
	return func(o *options) { o.compressor = c }
}

// WithResourceController rate limits blob IO through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithClock overrides the manifest timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(optFns []Option) (options, error) {
	o := options{
		blockSize:  DefaultBlockSize,
		compressor: codec.Zstd{},
		now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.blockSize <= 0 {
		return o, fmt.Errorf("snapshot: invalid block size: %d", o.blockSize)
	}
	if o.compressor == nil {
		o.compressor = codec.None{}
	}
	return o, nil
}

func dir(id string) string { return Prefix + id + "/" }

// ChunkName returns the blob name of block key in snapshot id.
func ChunkName(id string, key int64) string {
	return path.Join(Prefix, id, fmt.Sprintf("%d.blk", key))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Export writes every record of tbl to blobs and returns the manifest.
// Chunks are written first and the manifest last.
func Export(ctx context.Context, tbl table.Table, blobs blobstore.Store, optFns ...Option) (Manifest, error) {
	o, err := buildOptions(optFns)
	if err != nil {
		return Manifest{}, err
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return Manifest{}, err
	}

	m := Manifest{
		Version:     FormatVersion,
		ID:          uid.String(),
		CreatedAt:   o.now().UTC(),
		BlockSize:   o.blockSize,
		Compression: o.compressor.Name(),
	}

	var (
		cur     = record.Block{}
		curKey  int64
		started bool
	)

	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		entry, err := writeChunk(ctx, blobs, o, m.ID, curKey, cur)
		if err != nil {
			return err
		}
		m.Blocks = append(m.Blocks, entry)
		cur = record.Block{}
		return nil
	}

	err = tbl.Scan(ctx, func(rec record.Record) error {
		key := floorDiv(rec.ID, o.blockSize)
		if started && key != curKey {
			if err := flush(); err != nil {
				return err
			}
		}
		if m.Records == 0 {
			m.MinID = rec.ID
		}
		m.MaxID = rec.ID
		m.Records++

		curKey, started = key, true
		cur[rec.ID] = rec
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot: export %s: %w", m.ID, err)
	}

	data, err := codec.Default.Marshal(m)
	if err != nil {
		return Manifest{}, err
	}
	if err := put(ctx, blobs, o.rc, path.Join(Prefix, m.ID, manifestName), data); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: write manifest %s: %w", m.ID, err)
	}
	return m, nil
}

func writeChunk(ctx context.Context, blobs blobstore.Store, o options, id string, key int64, blk record.Block) (BlockEntry, error) {
	raw, err := record.EncodeBlock(blk)
	if err != nil {
		return BlockEntry{}, err
	}
	data, err := o.compressor.Compress(raw)
	if err != nil {
		return BlockEntry{}, err
	}
	if err := put(ctx, blobs, o.rc, ChunkName(id, key), data); err != nil {
		return BlockEntry{}, err
	}
	ids := blk.IDs()
	return BlockEntry{
		Key:      key,
		MinID:    ids[0],
		MaxID:    ids[len(ids)-1],
		Records:  len(blk),
		Bytes:    len(data),
		Checksum: xxhash.Sum64(data),
	}, nil
}

func put(ctx context.Context, blobs blobstore.Store, rc *resource.Controller, name string, data []byte) error {
	var r io.Reader = bytes.NewReader(data)
	if rc != nil {
		r = resource.NewRateLimitedReader(ctx, r, rc)
	}
	return blobs.Put(ctx, name, r)
}

func get(ctx context.Context, blobs blobstore.Store, rc *resource.Controller, name string) ([]byte, error) {
	body, err := blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var r io.Reader = body
	if rc != nil {
		r = resource.NewRateLimitedReader(ctx, r, rc)
	}
	return io.ReadAll(r)
}

// ReadManifest loads the manifest of snapshot id.
func ReadManifest(ctx context.Context, blobs blobstore.Store, id string) (Manifest, error) {
	data, err := blobstore.GetBytes(ctx, blobs, path.Join(Prefix, id, manifestName))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Manifest{}, err
	}

	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: decode manifest %s: %w", id, err)
	}
	if m.Version != FormatVersion {
		return Manifest{}, fmt.Errorf("snapshot: unsupported manifest version %d", m.Version)
	}
	return m, nil
}

type batchPutter interface {
	PutBatch(ctx context.Context, recs []record.Record) error
}

// Import restores snapshot id into tbl. Existing rows with the same ids are
// replaced; other rows are left alone.
//
// Chunks are restored one at a time. If a chunk fails, Import returns the
// manifest together with the error: rows of earlier chunks, and possibly
// some of the failing one, are already in tbl.
func Import(ctx context.Context, blobs blobstore.Store, id string, tbl table.Table, optFns ...Option) (Manifest, error) {
	o, err := buildOptions(optFns)
	if err != nil {
		return Manifest{}, err
	}

	m, err := ReadManifest(ctx, blobs, id)
	if err != nil {
		return Manifest{}, err
	}

	comp, ok := codec.CompressorByName(m.Compression)
	if !ok {
		return Manifest{}, fmt.Errorf("snapshot: unknown compression %q", m.Compression)
	}

	for _, entry := range m.Blocks {
		if err := importChunk(ctx, blobs, o, comp, id, entry, tbl); err != nil {
			return m, err
		}
	}
	return m, nil
}

func importChunk(ctx context.Context, blobs blobstore.Store, o options, comp codec.Compressor, id string, entry BlockEntry, tbl table.Table) error {
	data, err := get(ctx, blobs, o.rc, ChunkName(id, entry.Key))
	if err != nil {
		return fmt.Errorf("snapshot: read block %d: %w", entry.Key, err)
	}
	if xxhash.Sum64(data) != entry.Checksum {
		return fmt.Errorf("%w: block %d", ErrChecksum, entry.Key)
	}

	raw, err := comp.Decompress(data)
	if err != nil {
		return fmt.Errorf("snapshot: decompress block %d: %w", entry.Key, err)
	}
	blk, err := record.DecodeBlock(raw)
	if err != nil {
		return fmt.Errorf("snapshot: decode block %d: %w", entry.Key, err)
	}

	if err := putRecords(ctx, tbl, blk.Records()); err != nil {
		return fmt.Errorf("snapshot: restore block %d: %w", entry.Key, err)
	}
	return nil
}

func putRecords(ctx context.Context, tbl table.Table, recs []record.Record) error {
	if bp, ok := tbl.(batchPutter); ok {
		return bp.PutBatch(ctx, recs)
	}
	for _, rec := range recs {
		if err := tbl.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// List returns the ids of complete snapshots, oldest first.
func List(ctx context.Context, blobs blobstore.Store) ([]string, error) {
	names, err := blobs.List(ctx, Prefix)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, name := range names {
		rest := strings.TrimPrefix(name, Prefix)
		id, file, ok := strings.Cut(rest, "/")
		if ok && file == manifestName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Latest returns the id of the newest complete snapshot.
func Latest(ctx context.Context, blobs blobstore.Store) (string, error) {
	ids, err := List(ctx, blobs)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	return ids[len(ids)-1], nil
}

// Delete removes every blob of snapshot id. The manifest goes first so a
// partially deleted snapshot is never listed.
func Delete(ctx context.Context, blobs blobstore.Store, id string) error {
	if err := blobs.Delete(ctx, path.Join(Prefix, id, manifestName)); err != nil {
		return err
	}

	names, err := blobs.List(ctx, dir(id))
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := blobs.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
