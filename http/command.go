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

package http

import (
	"os"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/aws/s3"
	"github.com/pilosa/oteapi-dlite/boltdb"
	"github.com/pilosa/oteapi-dlite/datacache"
	"github.com/pilosa/oteapi-dlite/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Main holds the config for the serve command.
type Main struct {
	Bind        string        `help:"Listen for pipeline requests on this address."`
	Store       string        `help:"Bolt file to keep collections in. Empty keeps them in memory."`
	StoragePath string        `help:"'|' separated directories to search for data models."`
	EntitiesDir string        `help:"Directory to save data models fetched by URI to."`
	CacheDir    string        `help:"Directory for the download and data cache. Empty caches in memory."`
	CacheExpire time.Duration `help:"Expiry of cached downloads and data."`
	RateLimit   float64       `help:"Requests per second to any single host. 0 is unlimited."`
	S3Region    string        `help:"AWS region for s3:// URLs."`
	Verbose     bool          `help:"Enable verbose logging."`

	// Started is called with the running server.
	Started func(s *Server) `flag:"-"`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	return &Main{
		Bind:        ":12121",
		CacheExpire: datacache.DefaultExpire,
		S3Region:    "us-east-1",
	}
}

// Run runs the serve command until the server stops.
func (m *Main) Run() error {
	log := dlite.NewLogger(os.Stderr, m.Verbose)

	var collections dlite.CollectionStore = dlite.NewMemCollectionStore()
	if m.Store != "" {
		store, err := boltdb.NewStore(m.Store)
		if err != nil {
			return errors.Wrap(err, "opening collection store")
		}
		defer store.Close()
		collections = store
	}

	cache := datacache.New(datacache.OptDir(m.CacheDir), datacache.OptExpire(m.CacheExpire))
	downloadOpts := []DownloaderOption{
		OptDownloadLogger(log),
		OptDownloadCache(cache),
		OptScheme("s3", s3.New(s3.OptRegion(m.S3Region))),
	}
	if m.RateLimit > 0 {
		downloadOpts = append(downloadOpts, OptRateLimit(m.RateLimit, 1))
	}

	metas := dlite.NewMetaStore()
	metas.AddPaths(m.StoragePath)
	metas.EntitiesDir = m.EntitiesDir

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	srv, err := NewServer(
		WithAddr(m.Bind),
		WithCollections(collections),
		WithMetas(metas),
		WithFetcher(NewDownloader(downloadOpts...)),
		WithCache(cache),
		WithLogger(log),
		WithStats(metrics.NewPromStatter(reg)),
		WithGatherer(reg),
	)
	if err != nil {
		return errors.Wrap(err, "starting server")
	}
	log.Printf("listening on %s", srv.Addr())
	if m.Started != nil {
		m.Started(srv)
	}
	return srv.Wait()
}
