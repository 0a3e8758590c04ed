package cmd

import (
	"io"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/aws/s3"
	"github.com/pilosa/oteapi-dlite/boltdb"
	"github.com/pilosa/oteapi-dlite/datacache"
	"github.com/pilosa/oteapi-dlite/http"
	"github.com/pkg/errors"
)

// newSession builds a session from the global flags. The returned close
// function releases the collection store.
func newSession(stderr io.Writer, collectionID string) (*dlite.Session, func() error, error) {
	log := dlite.NewLogger(stderr, Global.Verbose)
	closer := func() error { return nil }

	var collections dlite.CollectionStore = dlite.NewMemCollectionStore()
	if Global.Store != "" {
		store, err := boltdb.NewStore(Global.Store)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening collection store")
		}
		collections = store
		closer = store.Close
	}

	cache := datacache.New(datacache.OptDir(Global.CacheDir))
	fetcher := http.NewDownloader(
		http.OptDownloadLogger(log),
		http.OptDownloadCache(cache),
		http.OptScheme("s3", s3.New()),
	)
	metas := dlite.NewMetaStore()
	metas.AddPaths(Global.StoragePath)

	sess := dlite.NewSession(
		dlite.OptSessionCollections(collections),
		dlite.OptSessionMetas(metas),
		dlite.OptSessionFetcher(fetcher),
		dlite.OptSessionCache(cache),
		dlite.OptSessionLogger(log),
		dlite.OptSessionState(dlite.SessionUpdate{CollectionID: collectionID}),
	)
	return sess, closer, nil
}
