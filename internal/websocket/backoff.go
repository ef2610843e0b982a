package websocket

import "time"

const (
	reconnectBaseDelay = 1000 * time.Millisecond
	reconnectMaxDelay  = 16000 * time.Millisecond
)

// ReconnectDelay is the wait before the given 1-based reconnect attempt:
// 1s, 2s, 4s, 8s, then 16s from there on.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := reconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= reconnectMaxDelay {
			return reconnectMaxDelay
		}
	}
	return delay
}
