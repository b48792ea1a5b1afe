// internal/browser/session/context_utils.go
package session

import "context"

// CombineContext derives a context from primary that is also cancelled when
// secondary is done. Values come from primary only, so chromedp target
// information on the tab context survives while the caller's deadline applies.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	if secondary.Done() == nil {
		return combined, cancel
	}
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
