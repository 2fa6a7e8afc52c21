// Package redisstore provides a session store on Redis, for deployments
// where several engine replicas share state.
//
// Commits use optimistic transactions: the session key is WATCHed, its
// version checked, and the new session, fix and result written in one
// MULTI/EXEC. A concurrent write to the session aborts the EXEC and the
// commit fails with domain.ErrSessionVersionConflict.
package redisstore
