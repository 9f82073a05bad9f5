//go:build !debugassert

package core

const debugAssertions = false
