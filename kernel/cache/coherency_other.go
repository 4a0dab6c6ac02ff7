//go:build !arm && !arm64

package cache

const archNonCoherent = false
