package persist

import "time"

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func secondsDuration(sec int64) time.Duration { return time.Duration(sec) * time.Second }
