// Package loader is the module loader engine. It resolves module identifiers,
// routes unresolved modules through the sync or async fetch pipeline, matches
// define calls to the requests that caused them and settles each module in the
// registry.
//
// A Loader is single-threaded: every method must be called from the host's
// event loop goroutine. Async fetches run elsewhere and post their results
// back through Host.Post.
package loader
