package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// DenialAlerter counts access denials per caller in fixed Redis windows and
// reports when a caller crosses the threshold, which usually means someone is
// probing ids they do not own.
type DenialAlerter struct {
	client    redis.Scripter
	prefix    string
	threshold int64
	window    time.Duration
}

// MinAlertWindow is the smallest window the alerter can bucket by.
const MinAlertWindow = time.Millisecond

// NewDenialAlerter returns nil when client is nil, threshold is not positive
// or window is shorter than MinAlertWindow; a nil alerter observes nothing.
func NewDenialAlerter(client redis.Scripter, prefix string, threshold int, window time.Duration) *DenialAlerter {
	if client == nil || threshold <= 0 || window < MinAlertWindow {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "grocery:audit:alerts"
	}
	return &DenialAlerter{
		client:    client,
		prefix:    prefix,
		threshold: int64(threshold),
		window:    window,
	}
}

// Observe counts one denial for (userID, ip). Triggered is set exactly when
// the count reaches the threshold, so one window alerts once.
func (a *DenialAlerter) Observe(ctx context.Context, userID, ip string) (AlertResult, error) {
	result := AlertResult{}
	if a == nil {
		return result, nil
	}
	windowMs := a.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:denied:%s:%s:%d", a.prefix, sanitizeSegment(userID), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = a.threshold
	result.Window = a.window
	result.Triggered = count == a.threshold
	return result, nil
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(":", "_", "|", "_", " ", "_")
	return replacer.Replace(in)
}
