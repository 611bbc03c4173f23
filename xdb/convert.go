package xdb

import "fmt"

// ToTree loads every entry of the store into an in-memory dictionary. When
// t is nil a new Tree is created with the store's base and prime; passing a
// dictionary built with a different seed or bucket count scatters keys into
// the wrong buckets, so the pair is enforced.
//
// Entries whose payload was shrunk to zero length are skipped, matching Get.
func (db *DB) ToTree(t *Tree) (*Tree, error) {
	if t == nil {
		t = NewTree(db.base, db.prime)
	} else if t.base != db.base || t.prime != db.prime {
		return nil, fmt.Errorf("dictionary (base=%d, prime=%d) does not match store (base=%d, prime=%d)",
			t.base, t.prime, db.base, db.prime)
	}
	for b := uint32(0); b < db.prime; b++ {
		err := db.walkBucket(b, func(me Ptr, key []byte) error {
			vlen := me.Len - recHdrSize - uint32(len(key))
			if vlen == 0 {
				return nil
			}
			value := t.pool.Alloc(int(vlen))
			if err := db.readData(value, me.Off+recHdrSize+uint32(len(key))); err != nil {
				return err
			}
			t.Put(key, value)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", b, err)
		}
	}
	return t, nil
}

// Save flushes the dictionary into a fresh store at path, preorder per
// bucket so the file reproduces the tree's shape, and closes it. The file
// must not already exist.
func (t *Tree) Save(path string) error {
	db, err := Create(path, t.base, t.prime)
	if err != nil {
		return err
	}
	for b := uint32(0); b < t.prime; b++ {
		var putErr error
		t.walk(b, func(key, value []byte) {
			if putErr == nil {
				putErr = db.Put(key, value)
			}
		})
		if putErr != nil {
			db.Close()
			return putErr
		}
	}
	return db.Close()
}
