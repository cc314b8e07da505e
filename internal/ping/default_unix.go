//go:build !windows

package ping

func newDefaultEngine(privileged bool) Engine {
	return NewFallbackEngine(NewICMPEngine(privileged), NewExternalEngine())
}
