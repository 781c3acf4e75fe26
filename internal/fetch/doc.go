// Package fetch acquires module bodies. Getters know how to read one URL
// scheme; a Registry dispatches on the scheme; the Sync and Async strategies
// decide how the result is delivered back to the loader.
package fetch
