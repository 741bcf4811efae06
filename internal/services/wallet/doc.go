/*
Package wallet mirrors the payer's spendable balance for the scan session.

The BalanceCache is a single cell holding the last WalletSnapshot read from the
backend. It is refreshed when the session mounts and after every settlement
attempt, whatever the outcome. Readers get the last known value synchronously:

	cache := wallet.NewBalanceCache(repo, payerID, "IDR")

	// Mount
	snap, err := cache.Refresh(ctx)

	// Any UI surface
	snap, ok := cache.Current()

Nothing outside this package can write the cell; the only mutation is Refresh,
and concurrent refreshes resolve last-writer-wins.

Error Handling:

Refresh returns ErrRefreshFailed wrapping the backend cause. A failed refresh
leaves the previous snapshot in place.
*/
package wallet
