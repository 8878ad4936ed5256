// Package ledger holds the persistent model of the subscription system and
// the transactional store that owns it.
//
// A Store exposes units of work through Tx. Everything written through the
// Tx handle inside one call either becomes visible together or not at all.
// Two implementations are provided:
//
//   - PostgresStore runs each unit of work in a pgx transaction and uses
//     row locks (LockUser, LockTransaction) to serialize balance mutations.
//   - MemoryStore works on a private copy of its state and publishes it on
//     success. It backs the tests and local runs without a database.
//
// Purchases are recorded with negative amounts and deposits with positive
// ones, so a user's wallet balance always equals SumCompleted for that user.
//
// Not-found errors wrap ErrNotFound and can be matched either specifically
// (ErrUserNotFound) or generally (ErrNotFound). Infrastructure failures are
// reported as ErrStoreUnavailable.
package ledger
