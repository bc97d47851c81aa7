package profile

import (
	"context"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Counters is the atomic real-time aggregation layer. Every window is a flat
// counter record in the store, keyed by client and time bucket; increments go
// through AddAndGet so concurrent evaluations of one client never lose a
// count. Reads may lag an in-flight write by design.
type Counters struct {
	store store.Store
}

// NewCounters wraps a store with the counter key schema.
func NewCounters(s store.Store) *Counters {
	return &Counters{store: s}
}

// Key builders. The schemas are an external contract (operators query
// counters directly); keep in sync with the set names in internal/store.

func hourlyKey(clientID, hourBucket string) string {
	return clientID + ":" + hourBucket
}

func dailyKey(clientID, dayBucket string) string {
	return clientID + ":" + dayBucket
}

func newBeneKey(clientID, dayBucket string) string {
	return clientID + ":newbene:" + dayBucket
}

func beneHourlyKey(clientID, beneKey, hourBucket string) string {
	return clientID + ":" + beneKey + ":" + hourBucket
}

// beneDailyKey lives in the client_daily_counters set next to the plain
// daily family; the "beneDaily" segment keeps the two key spaces disjoint.
func beneDailyKey(clientID, dayBucket, beneKey string) string {
	return clientID + ":beneDaily:" + dayBucket + ":" + beneKey
}

// ─── Reads ──────────────────────────────────────────────────────────

func (c *Counters) read(ctx context.Context, set, key string) (models.CounterRecord, error) {
	var rec models.CounterRecord
	_, err := store.GetJSON(ctx, c.store, set, key, &rec)
	return rec, err
}

// HourlyAt reads the client's counter for an explicit hour bucket. The
// profile service uses it at rollover to absorb the completed hour.
func (c *Counters) HourlyAt(ctx context.Context, clientID, hourBucket string) (models.CounterRecord, error) {
	return c.read(ctx, store.SetClientHourlyCounters, hourlyKey(clientID, hourBucket))
}

// Hourly reads the client's counter for the hour containing tsMillis.
func (c *Counters) Hourly(ctx context.Context, clientID string, tsMillis int64) (models.CounterRecord, error) {
	return c.HourlyAt(ctx, clientID, HourBucket(tsMillis))
}

// DailyAt reads the client's counter for an explicit day bucket.
func (c *Counters) DailyAt(ctx context.Context, clientID, dayBucket string) (models.CounterRecord, error) {
	return c.read(ctx, store.SetClientDailyCounters, dailyKey(clientID, dayBucket))
}

// Daily reads the client's counter for the day containing tsMillis.
func (c *Counters) Daily(ctx context.Context, clientID string, tsMillis int64) (models.CounterRecord, error) {
	return c.DailyAt(ctx, clientID, DayBucket(tsMillis))
}

// NewBeneAt reads the count of beneficiaries first seen on an explicit day.
func (c *Counters) NewBeneAt(ctx context.Context, clientID, dayBucket string) (int64, error) {
	rec, err := c.read(ctx, store.SetDailyNewBeneCounters, newBeneKey(clientID, dayBucket))
	return rec.Count, err
}

// NewBene reads the count of beneficiaries first seen on the day of tsMillis.
func (c *Counters) NewBene(ctx context.Context, clientID string, tsMillis int64) (int64, error) {
	return c.NewBeneAt(ctx, clientID, DayBucket(tsMillis))
}

// BeneHourly reads the client→beneficiary counter for the current hour.
func (c *Counters) BeneHourly(ctx context.Context, clientID, beneKey string, tsMillis int64) (models.CounterRecord, error) {
	return c.read(ctx, store.SetBeneHourlyCounters,
		beneHourlyKey(clientID, beneKey, HourBucket(tsMillis)))
}

// BeneDailyAmount reads the paise total sent to one beneficiary today,
// aggregated across every transaction type.
func (c *Counters) BeneDailyAmount(ctx context.Context, clientID, beneKey string, tsMillis int64) (int64, error) {
	rec, err := c.read(ctx, store.SetClientDailyCounters,
		beneDailyKey(clientID, DayBucket(tsMillis), beneKey))
	return rec.TotalAmount, err
}

// ─── Increments ─────────────────────────────────────────────────────

// BumpTxn records one transaction into the current hourly and daily windows.
func (c *Counters) BumpTxn(ctx context.Context, clientID string, tsMillis, amountPaise int64) error {
	hk := hourlyKey(clientID, HourBucket(tsMillis))
	dk := dailyKey(clientID, DayBucket(tsMillis))

	if _, err := c.store.AddAndGet(ctx, store.SetClientHourlyCounters, hk, store.FieldCount, 1); err != nil {
		return err
	}
	if _, err := c.store.AddAndGet(ctx, store.SetClientHourlyCounters, hk, store.FieldTotalAmount, amountPaise); err != nil {
		return err
	}
	if _, err := c.store.AddAndGet(ctx, store.SetClientDailyCounters, dk, store.FieldCount, 1); err != nil {
		return err
	}
	if _, err := c.store.AddAndGet(ctx, store.SetClientDailyCounters, dk, store.FieldTotalAmount, amountPaise); err != nil {
		return err
	}
	return nil
}

// BumpNewBene records a first-ever beneficiary for today and returns the new
// day total.
func (c *Counters) BumpNewBene(ctx context.Context, clientID string, tsMillis int64) (int64, error) {
	return c.store.AddAndGet(ctx, store.SetDailyNewBeneCounters,
		newBeneKey(clientID, DayBucket(tsMillis)), store.FieldCount, 1)
}

// BumpBene records one transaction into the beneficiary's hourly window and
// the cross-type daily amount window.
func (c *Counters) BumpBene(ctx context.Context, clientID, beneKey string, tsMillis, amountPaise int64) error {
	bk := beneHourlyKey(clientID, beneKey, HourBucket(tsMillis))
	if _, err := c.store.AddAndGet(ctx, store.SetBeneHourlyCounters, bk, store.FieldCount, 1); err != nil {
		return err
	}
	if _, err := c.store.AddAndGet(ctx, store.SetBeneHourlyCounters, bk, store.FieldTotalAmount, amountPaise); err != nil {
		return err
	}
	dk := beneDailyKey(clientID, DayBucket(tsMillis), beneKey)
	if _, err := c.store.AddAndGet(ctx, store.SetClientDailyCounters, dk, store.FieldTotalAmount, amountPaise); err != nil {
		return err
	}
	return nil
}
