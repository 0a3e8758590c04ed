// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package boltdb keeps collections and instances in bolt databases.
package boltdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

var collBucket = []byte("collections")

// Store is a dlite.CollectionStore persisting collection snapshots in a
// bolt database.
type Store struct {
	Db *bolt.DB
}

var _ dlite.CollectionStore = &Store{}

// Close syncs and closes the underlying boltdb.
func (s *Store) Close() error {
	err := s.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return s.Db.Close()
}

// NewStore opens (creating if needed) the bolt database at filename.
func NewStore(filename string) (*Store, error) {
	db, err := open(filename)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(collBucket)
		return errors.Wrap(err, "creating collections bucket")
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &Store{Db: db}, nil
}

func open(filename string) (*bolt.DB, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, dlite.StorageError(err, "opening db file '%v'", filename)
	}
	return db, nil
}

// Get implements dlite.CollectionStore.
func (s *Store) Get(ctx context.Context, id string) (*dlite.Collection, error) {
	var data []byte
	err := s.Db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(collBucket).Get([]byte(id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, dlite.StorageError(err, "bolt get collection %s", id)
	}
	if data == nil {
		return nil, dlite.MissingError("get collection %s", id)
	}
	var snap dlite.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, dlite.DecodeError(err, "bolt collection %s", id)
	}
	return dlite.FromSnapshot(&snap)
}

// Put implements dlite.CollectionStore.
func (s *Store) Put(ctx context.Context, c *dlite.Collection) error {
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return dlite.DecodeError(err, "encoding collection %s", c.UUID)
	}
	err = s.Db.Batch(func(tx *bolt.Tx) error {
		return tx.Bucket(collBucket).Put([]byte(c.UUID), data)
	})
	if err != nil {
		return dlite.StorageError(err, "bolt put collection %s", c.UUID)
	}
	return nil
}

// IDs returns the UUIDs of the stored collections in key order.
func (s *Store) IDs() ([]string, error) {
	var ids []string
	err := s.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(collBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, errors.Wrap(err, "listing collections")
}

func init() {
	dlite.RegisterDriver("bolt", dlite.DriverFunc(Save), "application/x-bolt")
}

// Save is the "bolt" storage driver. It stores the record of st in the bolt
// database at location, in a bucket named after its data model and keyed by
// UUID. The "bucket" option overrides the bucket name.
func Save(ctx context.Context, st dlite.Storable, location string, opts dlite.Options) error {
	r := st.Record()
	data, err := json.Marshal(r)
	if err != nil {
		return dlite.DecodeError(err, "encoding %s", r.UUID)
	}
	db, err := open(location)
	if err != nil {
		return err
	}
	defer db.Close()
	bucket := opts.Get("bucket", r.Meta)
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return errors.Wrapf(err, "creating bucket %s", bucket)
		}
		return b.Put([]byte(r.UUID), data)
	})
	if err != nil {
		return dlite.StorageError(err, "bolt save %s", r.UUID)
	}
	return nil
}
