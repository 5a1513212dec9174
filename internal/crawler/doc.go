// Package crawler holds the domain types shared by the capture pipeline:
// jobs, chat records and their dedup store, duration parsing, the error
// taxonomy and the interfaces the session, worker and dispatcher depend on.
package crawler
