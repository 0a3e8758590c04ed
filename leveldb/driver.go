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

// Package leveldb implements the "leveldb" storage driver.
package leveldb

import (
	"context"
	"encoding/json"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

func init() {
	dlite.RegisterDriver("leveldb", dlite.DriverFunc(Save), "application/x-leveldb")
}

// Save stores the record of st in the leveldb database in the directory
// location, keyed by UUID. With the "sync" option the write is synced to
// disk before Save returns. With "prefix=meta" the key is prefixed by the
// data model URI and a space, so that instances of one data model are
// adjacent.
func Save(ctx context.Context, st dlite.Storable, location string, opts dlite.Options) error {
	r := st.Record()
	data, err := json.Marshal(r)
	if err != nil {
		return dlite.DecodeError(err, "encoding %s", r.UUID)
	}
	db, err := leveldb.OpenFile(location, &opt.Options{})
	if err != nil {
		return dlite.StorageError(err, "opening leveldb %s", location)
	}
	key := r.UUID
	if opts.Get("prefix", "") == "meta" {
		key = r.Meta + " " + r.UUID
	}
	err = db.Put([]byte(key), data, &opt.WriteOptions{Sync: opts.Bool("sync")})
	if cerr := db.Close(); err == nil {
		err = errors.Wrap(cerr, "closing leveldb")
	}
	if err != nil {
		return dlite.StorageError(err, "leveldb save %s", r.UUID)
	}
	return nil
}
