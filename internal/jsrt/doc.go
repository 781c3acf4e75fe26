// Package jsrt hosts the module loader inside a goja JavaScript runtime.
//
// The runtime owns a goja_nodejs event loop. The loader, every module body and
// every factory run on that loop's goroutine; Runtime methods marshal calls
// from other goroutines onto the loop and wait for the result.
//
// Scripts see the globals define, require, requireSync, preload and console.
package jsrt
