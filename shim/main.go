//go:build linux

package main

// main is unused; the shared object is loaded via LD_PRELOAD, never
// executed directly. Required because cgo's c-shared buildmode still
// needs a package main with a main function.
func main() {}
