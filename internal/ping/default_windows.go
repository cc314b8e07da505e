//go:build windows

package ping

// Raw ICMP sockets need elevation on Windows; pro-bing uses the privileged
// path there regardless of the configured mode.
func newDefaultEngine(bool) Engine {
	return NewProbingEngine(true)
}
