//go:build arm || arm64

package cache

// ARM cores do not snoop the data cache on instruction fetches.
const archNonCoherent = true
