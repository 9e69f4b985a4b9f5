// Package pebblestore wraps Pebble for the ledger's snapshot backend: a fixed
// fsync policy, atomic prefix replacement, ordered prefix scans and a metrics
// hook.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeInterval})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//	err = db.ReplacePrefix(ctx, []byte("ledger/"), func(b *pebble.Batch) error {
//		return b.Set([]byte("ledger/m"), count, nil)
//	})
package pebblestore
