// Package ledger provides the durable transaction ledger used to de-duplicate purchases.
//
// # Overview
//
// Every transaction the application confirms is recorded as a marker named by a
// 64-bit hash of its transaction id. Before a purchase is handed to the application
// the orchestrator asks the ledger whether the id was recorded before, in this
// process or an earlier one.
//
// A missed write is tolerated: Record logs storage errors and returns. At worst this
// lets one transaction be delivered again after a restart. A false "recorded" answer
// is never produced by a failure.
//
// # Usage
//
// File markers under an application data directory:
//
//	store, err := ledger.NewFileStore(dataDir)
//	if err != nil {
//	    return err
//	}
//	l, err := ledger.New(ledger.WithStore(store), ledger.WithLogger(logger))
//
// Shared backends:
//
//	store := ledger.NewRedisStore(redisClient, ledger.WithKeyPrefix("myapp:tx:"))
//	store := ledger.NewPostgresStore(pool)
//
// # Implementing Custom Stores
//
// Implement Store with Exists, Put and Clear. Keys are the 16 character
// uppercase hex hashes produced by Hash.
//
// # Hash
//
// The hash seeds with 3074457345618258791 and, for each UTF-16 code unit of the id,
// adds the unit and multiplies by 3074457345618258799 with 64-bit wraparound. The
// result is rendered as the hex of its little-endian bytes. Collisions are possible;
// at the expected number of transactions the risk is accepted.
package ledger
