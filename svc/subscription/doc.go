// Package subscription implements the wallet and subscription engine.
//
// Engine owns every balance-affecting operation: Purchase, ExtendOrRenew,
// RecordDeposit, ApproveDeposit and RejectDeposit. Each runs in a single
// ledger unit of work that locks the user row first, so concurrent
// operations of one user are serialized and the funds check always sees
// the latest committed balance.
//
// Purchases call the provisioning panel inside the unit of work with a
// bounded timeout. A provisioning failure aborts the unit of work and the
// caller gets ErrProvisioningFailed with nothing written. When the commit
// itself fails after the panel account was created, the engine deletes the
// account again; if that also fails a ReconciliationDebt row is written for
// operators and the caller gets ErrStoreUnavailable.
//
// UserMessage converts engine errors into short messages that are safe to
// show to end users.
package subscription
