//go:build wasm

package stablemem

// DefaultHostPager is the pager NewDefaultMemory binds to on hosted
// builds. The runtime binding assigns it during initialization, before any
// stable structure is constructed.
var DefaultHostPager HostPager

// NewDefaultMemory returns the default backing for this build target: the
// host's stable pages through DefaultHostPager.
func NewDefaultMemory() Memory {
	if DefaultHostPager == nil {
		panic("stablemem: no host pager registered; assign DefaultHostPager before use")
	}
	return NewHostMemory(DefaultHostPager)
}
