package xdb

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Put stores value under key. Invalid arguments — an empty or oversize key,
// or a zero-length value for a key that does not exist — are documented
// no-ops, as is calling Put on a read-only handle.
//
// A value no longer than the current one is overwritten in place; shrinking
// additionally patches the owning pointer's length field, leaving the tail
// bytes dead. A value that grew is appended as a new record at the end of
// the file, carrying over the old record's children and key, and the single
// parent slot discovered during the descent is re-pointed at it. Records
// written before this put are never moved.
func (db *DB) Put(key, value []byte) error {
	if !db.writable || db.file == nil {
		return nil
	}
	if len(key) == 0 || len(key) > MaxKeyLen {
		return nil
	}
	if uint64(len(value)) > math.MaxUint32 {
		return nil
	}
	r, err := db.find(key)
	if err != nil {
		return err
	}
	vlen := uint32(len(value))

	if !r.value.IsNull() && vlen <= r.value.Len {
		// Fits where it is.
		if vlen > 0 {
			if _, err := db.file.WriteAt(value, int64(r.value.Off)); err != nil {
				return fmt.Errorf("failed to overwrite value: %w", err)
			}
		}
		if vlen < r.value.Len {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], r.me.Len-r.value.Len+vlen)
			if _, err := db.file.WriteAt(buf[:], int64(r.poff)+4); err != nil {
				return fmt.Errorf("failed to patch record length: %w", err)
			}
		}
		return nil
	}
	if vlen == 0 {
		return nil
	}

	// Append a new record at the end of the file. When the key already
	// exists its children and key bytes are carried over; the old record is
	// orphaned once the parent slot is rewritten below.
	var hdr []byte
	if !r.me.IsNull() {
		hdr = make([]byte, r.me.Len-r.value.Len)
		if err := db.readData(hdr, r.me.Off); err != nil {
			return err
		}
	} else {
		hdr = make([]byte, recHdrSize+len(key))
		hdr[16] = byte(len(key))
		copy(hdr[recHdrSize:], key)
	}

	pnew := Ptr{Off: db.fsize, Len: uint32(len(hdr)) + vlen}
	if uint64(pnew.Off)+uint64(pnew.Len) > math.MaxUint32 {
		return fmt.Errorf("store full: record does not fit in a 32-bit file size")
	}
	if _, err := db.file.WriteAt(hdr, int64(pnew.Off)); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	if _, err := db.file.WriteAt(value, int64(pnew.Off)+int64(len(hdr))); err != nil {
		return fmt.Errorf("failed to append value: %w", err)
	}
	db.fsize += pnew.Len

	var slot [ptrSize]byte
	pnew.store(slot[:])
	if _, err := db.file.WriteAt(slot[:], int64(r.poff)); err != nil {
		return fmt.Errorf("failed to relink parent slot: %w", err)
	}
	if db.filter != nil {
		db.filter.Add(key)
	}
	return nil
}
