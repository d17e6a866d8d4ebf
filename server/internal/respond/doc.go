// Package respond writes the small JSON and plain-text bodies shared by every
// sensillum handler, and the single 500 fallback used when a response cannot
// be constructed.
package respond
