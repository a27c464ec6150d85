// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// snapshots, batches, prefix scans and minimal metrics hooks. linelog uses it
// to back the archive of released records.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	    Logger:  logger,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("archive/k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
//
//	_ = db.ScanPrefix([]byte("archive/"), func(k, v []byte) bool { return true })
package pebblestore
