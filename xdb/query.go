package xdb

import (
	"bytes"
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// rec is the outcome of one bucket descent. poff is the absolute byte offset
// of the pointer that led to me — the root table slot or a parent's child
// field — which is exactly the slot a relocating put has to rewrite.
type rec struct {
	poff  uint32
	me    Ptr
	value Ptr
}

// find descends key's bucket. When the key is present, rec.value spans the
// record's payload; otherwise rec.value is null and rec.poff names the slot
// a new record would be linked into.
func (db *DB) find(key []byte) (rec, error) {
	r := rec{poff: rootOff(Bucket(db.base, db.prime, key))}
	me, err := db.readPtr(r.poff)
	if err != nil {
		return rec{}, err
	}
	r.me = me

	scratch := bytebufferpool.Get()
	defer bytebufferpool.Put(scratch)
	if cap(scratch.B) < 1+MaxKeyLen {
		scratch.B = make([]byte, 1+MaxKeyLen)
	}
	buf := scratch.B[:1+MaxKeyLen]

	// A pointer cycle in a damaged file must not hang the descent.
	maxSteps := int(db.fsize/(recHdrSize+1)) + 1

	for steps := 0; !r.me.IsNull(); steps++ {
		if steps > maxSteps || !db.validRecord(r.me) {
			// Damaged pointer: the key is unreachable. A subsequent put
			// replaces the slot that held the bad pointer.
			r.me = Ptr{}
			break
		}
		// klen byte plus the stored key in one read.
		n := uint32(len(buf))
		if r.me.Len-recHdrSize+1 < n {
			n = r.me.Len - recHdrSize + 1
		}
		if err := db.readData(buf[:n], r.me.Off+recHdrSize-1); err != nil {
			return rec{}, err
		}
		klen := uint32(buf[0])
		if klen == 0 || recHdrSize+klen > r.me.Len {
			r.me = Ptr{}
			break
		}
		cmp := bytes.Compare(key, buf[1:1+klen])
		switch {
		case cmp > 0:
			r.poff = r.me.Off + ptrSize
		case cmp < 0:
			r.poff = r.me.Off
		default:
			r.value = Ptr{
				Off: r.me.Off + recHdrSize + klen,
				Len: r.me.Len - recHdrSize - klen,
			}
			return r, nil
		}
		if r.me, err = db.readPtr(r.poff); err != nil {
			return rec{}, err
		}
	}
	return r, nil
}

// Get returns the value stored under key, or ErrNotFound. The returned
// buffer is freshly allocated with a trailing NUL byte past its length, so
// it can be handed to C-style consumers unchanged.
//
// A nil or oversize key is never present. Records whose payload was
// shrunk to zero length read as absent.
func (db *DB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 || len(key) > MaxKeyLen {
		return nil, ErrNotFound
	}
	if db.filter != nil && !db.filter.Test(key) {
		return nil, ErrNotFound
	}
	r, err := db.find(key)
	if err != nil {
		return nil, err
	}
	if r.value.IsNull() {
		return nil, ErrNotFound
	}
	buf := make([]byte, r.value.Len+1)
	if err := db.readData(buf[:r.value.Len], r.value.Off); err != nil {
		return nil, fmt.Errorf("failed to read value: %w", err)
	}
	return buf[:r.value.Len], nil
}
