// Package badgerstore provides the durable, single-node session store on
// Badger v3.
//
// Commits run in a conflict-detecting transaction: the transaction reads
// the session key, checks its version and writes the new session, fix and
// result together. A concurrent commit that touched the same session
// fails with domain.ErrSessionVersionConflict.
package badgerstore
