package consensus

import "time"

func nowMillisUTC() int64 {
	return time.Now().UTC().UnixMilli()
}
