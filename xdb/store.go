package xdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/exp/mmap"
)

// Mode selects how Open accesses a store.
type Mode int

const (
	// ModeRead opens for random reads only. The file may be switched to a
	// read-only memory map, in which case the descriptor is dropped.
	ModeRead Mode = iota
	// ModeWrite opens for reads and in-place edits and holds an exclusive
	// advisory lock until Close.
	ModeWrite
)

type config struct {
	noMmap     bool
	withFilter bool
}

// Option configures Open.
type Option func(*config)

// WithoutMmap forces positioned reads on a descriptor even in read mode.
func WithoutMmap() Option {
	return func(c *config) { c.noMmap = true }
}

// WithFilter builds the negative-lookup filter as part of Open.
// Equivalent to calling LoadFilter on the returned store.
func WithFilter() Option {
	return func(c *config) { c.withFilter = true }
}

// DB is a handle to one XDB file. A handle is exclusively owned and must
// not be shared across goroutines.
type DB struct {
	path string
	file *os.File      // nil once a memory map took over
	mm   *mmap.ReaderAt // nil unless mapped
	src  io.ReaderAt

	writable bool
	base     uint32
	prime    uint32
	fsize    uint32

	filter *bloom.BloomFilter
}

// Create makes a fresh store at path, failing if the file already exists.
// Zero base or prime select the defaults (0xF422F, 2047). The store is in
// write mode and holds the exclusive lock until Close.
//
// Only the 32-byte header is written out; the root table materializes as a
// file hole, which reads back as null pointers until buckets gain roots.
func Create(path string, base, prime uint32) (*DB, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	db := &DB{
		path:     path,
		file:     f,
		src:      f,
		writable: true,
		base:     base,
		prime:    prime,
	}
	if db.base == 0 {
		db.base = defaultBase
	}
	if db.prime == 0 {
		db.prime = defaultPrime
	}
	if uint64(db.prime) > (math.MaxUint32-headerSize)/ptrSize {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("bucket count %d does not fit a 32-bit file size", db.prime)
	}
	db.fsize = headerSize + db.prime*ptrSize

	var buf [headerSize]byte
	hdr := header{base: db.base, prime: db.prime, fsize: db.fsize}
	hdr.store(&buf)
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return db, nil
}

// Open opens an existing store. It fails if the file is not a regular file,
// is empty, carries the wrong tag or version, or if the recorded file size
// disagrees with the actual size.
func Open(path string, mode Mode, opts ...Option) (*DB, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	flag := os.O_RDONLY
	if mode == ModeWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db, err := openFile(f, path, mode)
	if err != nil {
		f.Close()
		return nil, err
	}

	fadviseRandom(f)

	if mode == ModeRead && !cfg.noMmap {
		if mm, err := mmap.Open(path); err == nil {
			f.Close()
			db.file = nil
			db.mm = mm
			db.src = mm
		} else {
			slog.Warn("mmap failed, falling back to positioned reads", "path", path, "error", err)
		}
	}

	if cfg.withFilter {
		if err := db.LoadFilter(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func openFile(f *os.File, path string, mode Mode) (*DB, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w: not a regular file", path, ErrCorrupt)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s: %w: file is empty", path, ErrCorrupt)
	}

	var buf [headerSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, headerSize), buf[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var hdr header
	if err := hdr.load(&buf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if int64(hdr.fsize) != st.Size() {
		return nil, fmt.Errorf("%s: %w: recorded size %d, actual size %d",
			path, ErrCorrupt, hdr.fsize, st.Size())
	}
	if uint64(headerSize)+uint64(hdr.prime)*ptrSize > uint64(hdr.fsize) {
		return nil, fmt.Errorf("%s: %w: root table for %d buckets exceeds recorded size",
			path, ErrCorrupt, hdr.prime)
	}

	db := &DB{
		path:  path,
		file:  f,
		src:   f,
		base:  hdr.base,
		prime: hdr.prime,
		fsize: hdr.fsize,
	}
	if mode == ModeWrite {
		if err := lockFile(f); err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		db.writable = true
	}
	return db, nil
}

// Close releases the handle. In write mode the recorded file size is
// rewritten into the header, the file is padded out to it if no record ever
// materialized the root table, and the lock is released.
func (db *DB) Close() error {
	if db.mm != nil {
		err := db.mm.Close()
		db.mm = nil
		db.src = nil
		return err
	}
	if db.file == nil {
		return nil
	}
	var firstErr error
	if db.writable {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], db.fsize)
		if _, err := db.file.WriteAt(buf[:], 12); err != nil {
			firstErr = fmt.Errorf("failed to rewrite header size: %w", err)
		}
		if st, err := db.file.Stat(); err == nil && st.Size() < int64(db.fsize) {
			if err := db.file.Truncate(int64(db.fsize)); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to extend store to recorded size: %w", err)
			}
		}
		unlockFile(db.file)
	}
	if err := db.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	db.file = nil
	db.src = nil
	return firstErr
}

// Base returns the hash seed recorded in the header.
func (db *DB) Base() uint32 { return db.base }

// Prime returns the bucket count recorded in the header.
func (db *DB) Prime() uint32 { return db.prime }

// Size returns the recorded file size. It never decreases during a write
// session.
func (db *DB) Size() uint32 { return db.fsize }

// Version returns a banner describing the store, such as
// "XDB/1.2 (base=999983, prime=2047)".
func (db *DB) Version() string {
	return fmt.Sprintf("%s/%d.%d (base=%d, prime=%d)",
		tag[:], FormatVersion>>5, FormatVersion&0x1F, db.base, db.prime)
}

// readData fills buf from the given offset. Ranges beyond the recorded file
// size, and bytes past the file's actual end (the lazily-written root table
// of a store with no records yet), read back as zeros. Only genuine I/O
// failures are reported.
func (db *DB) readData(buf []byte, off uint32) error {
	zeroFrom := 0
	if uint64(off) < uint64(db.fsize) {
		n := len(buf)
		if uint64(off)+uint64(n) > uint64(db.fsize) {
			n = int(db.fsize - off)
		}
		got, err := db.src.ReadAt(buf[:n], int64(off))
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read at %d: %w", off, err)
		}
		zeroFrom = got
	}
	for i := zeroFrom; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (db *DB) readPtr(off uint32) (Ptr, error) {
	var buf [ptrSize]byte
	if err := db.readData(buf[:], off); err != nil {
		return Ptr{}, err
	}
	return loadPtr(buf[:]), nil
}

// validRecord reports whether p can possibly point at a well-formed record.
func (db *DB) validRecord(p Ptr) bool {
	if p.Len < recHdrSize+1 {
		return false
	}
	if p.Off < headerSize+db.prime*ptrSize {
		return false
	}
	return uint64(p.Off)+uint64(p.Len) <= uint64(db.fsize)
}

// walkBucket visits every record of bucket b in preorder. The key slice
// passed to fn is only valid for the duration of the call.
func (db *DB) walkBucket(b uint32, fn func(me Ptr, key []byte) error) error {
	root, err := db.readPtr(rootOff(b))
	if err != nil {
		return err
	}
	// A cycle of otherwise valid pointers would walk forever; more nodes
	// than could fit in the data region means the bucket is damaged.
	maxNodes := int(db.fsize/(recHdrSize+1)) + 1
	visited := 0

	hdr := make([]byte, recHdrSize+MaxKeyLen)
	stack := []Ptr{root}
	for len(stack) > 0 {
		me := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if me.IsNull() {
			continue
		}
		if !db.validRecord(me) {
			return fmt.Errorf("bucket %d: record at %d+%d: %w", b, me.Off, me.Len, ErrCorrupt)
		}
		if visited++; visited > maxNodes {
			return fmt.Errorf("bucket %d: pointer cycle: %w", b, ErrCorrupt)
		}
		n := len(hdr)
		if int(me.Len) < n {
			n = int(me.Len)
		}
		if err := db.readData(hdr[:n], me.Off); err != nil {
			return err
		}
		klen := int(hdr[16])
		if klen == 0 || recHdrSize+klen > int(me.Len) {
			return fmt.Errorf("bucket %d: record at %d declares key length %d beyond its %d bytes: %w",
				b, me.Off, klen, me.Len, ErrCorrupt)
		}
		if err := fn(me, hdr[recHdrSize:recHdrSize+klen]); err != nil {
			return err
		}
		// Preorder: node, then left, then right.
		stack = append(stack, loadPtr(hdr[8:16]), loadPtr(hdr[0:8]))
	}
	return nil
}
