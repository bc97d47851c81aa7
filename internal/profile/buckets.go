package profile

import (
	"strconv"
	"time"
)

// Time buckets are the join key between profiles and counters: every
// component that touches a counter derives the bucket string with these
// functions, so the strings agree bit-for-bit across the engine.
// All buckets are UTC.

// HourBucket returns the YYYYMMDDHH bucket for an epoch-millis timestamp.
func HourBucket(tsMillis int64) string {
	return time.UnixMilli(tsMillis).UTC().Format("2006010215")
}

// DayBucket returns the YYYYMMDD bucket for an epoch-millis timestamp.
func DayBucket(tsMillis int64) string {
	return time.UnixMilli(tsMillis).UTC().Format("20060102")
}

// HourOfDay returns the UTC hour (0-23) of a timestamp, the index into the
// hour-of-day seasonal slots.
func HourOfDay(tsMillis int64) int {
	return time.UnixMilli(tsMillis).UTC().Hour()
}

// DayOfWeek returns the UTC weekday of a timestamp, Sunday = 0.
func DayOfWeek(tsMillis int64) int {
	return int(time.UnixMilli(tsMillis).UTC().Weekday())
}

// bucketHourOfDay extracts the hour-of-day from a completed YYYYMMDDHH
// bucket. The completed period's slot is the one its statistics feed.
func bucketHourOfDay(hourBucket string) int {
	if len(hourBucket) != 10 {
		return 0
	}
	h, err := strconv.Atoi(hourBucket[8:])
	if err != nil || h < 0 || h > 23 {
		return 0
	}
	return h
}

// bucketDayOfWeek extracts the weekday (Sunday = 0) from a completed
// YYYYMMDD bucket.
func bucketDayOfWeek(dayBucket string) int {
	t, err := time.ParseInLocation("20060102", dayBucket, time.UTC)
	if err != nil {
		return 0
	}
	return int(t.Weekday())
}
