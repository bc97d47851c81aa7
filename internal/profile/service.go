package profile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Service owns the online behavioural profile: per-transaction statistics,
// hour/day rollovers into the EWMA baselines and seasonal slots, and the
// counter bumps for the live windows.
//
// Update order matters and is fixed:
//  1. type count + total count
//  2. global amount EWMA + Welford
//  3. per-type amount EWMA + Welford
//  4. hour rollover (absorb completed hour counter, feed hour-of-day slot)
//  5. day rollover (amount, TPS, new-beneficiary; feed day-of-week slots)
//  6. bump current hour/day counters
//  7. beneficiary statistics + beneficiary counters
//  8. stamp lastUpdated, persist
//
// Counter failures abort the update and fail the evaluation. A persist
// failure at step 8 is logged only: the in-memory profile already carries
// the transaction and downstream code proceeds with it.
type Service struct {
	store    store.Store
	counters *Counters
	alpha    float64

	now func() time.Time // injectable clock for tests
}

// NewService builds a profile service over a store with the per-transaction
// EWMA smoothing factor alpha.
func NewService(s store.Store, alpha float64) *Service {
	return &Service{
		store:    s,
		counters: NewCounters(s),
		alpha:    alpha,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Counters exposes the counter read/bump API sharing this service's store.
func (s *Service) Counters() *Counters { return s.counters }

// rolloverAlpha is the smoothing factor for period aggregates (hourly and
// daily). Periods are far rarer than transactions, so they get a faster
// alpha, capped at 0.1.
func (s *Service) rolloverAlpha() float64 {
	a := s.alpha * 10
	if a > 0.1 {
		return 0.1
	}
	return a
}

// GetOrCreate loads the client's profile, or returns a fresh empty one
// without writing it. The first persist happens on the first Update.
func (s *Service) GetOrCreate(ctx context.Context, clientID string) (*models.ClientProfile, error) {
	p := models.NewClientProfile(clientID)
	found, err := store.GetJSON(ctx, s.store, store.SetClientProfiles, clientID, p)
	if err != nil {
		return nil, err
	}
	if found {
		p.EnsureMaps()
	}
	return p, nil
}

// Persist writes the profile record.
func (s *Service) Persist(ctx context.Context, p *models.ClientProfile) error {
	return store.PutJSON(ctx, s.store, store.SetClientProfiles, p.ClientID, p)
}

// Update absorbs one transaction into the profile. Callers run detectors
// against the profile BEFORE calling Update; the transaction under
// evaluation must not contaminate its own baselines.
func (s *Service) Update(ctx context.Context, p *models.ClientProfile, txn *models.Transaction) error {
	p.EnsureMaps()
	amount := txn.AmountRupees()

	// 1. Counts.
	p.TxnTypeCounts[txn.TxnType]++
	p.TotalTxnCount++

	// 2. Global amount statistics.
	p.EwmaAmount = ewma(p.EwmaAmount, amount, s.alpha)
	p.MeanAmount, p.AmountM2 = welford(p.MeanAmount, p.AmountM2, p.TotalTxnCount, amount)

	// 3. Per-type amount statistics.
	tn := p.TxnTypeCounts[txn.TxnType]
	p.EwmaAmountByType[txn.TxnType] = ewma(p.EwmaAmountByType[txn.TxnType], amount, s.alpha)
	p.MeanAmountByType[txn.TxnType], p.AmountM2ByType[txn.TxnType] =
		welford(p.MeanAmountByType[txn.TxnType], p.AmountM2ByType[txn.TxnType], tn, amount)

	// 4-5. Period rollovers, before the current bucket counters move.
	if err := s.rollHour(ctx, p, txn.Timestamp); err != nil {
		return err
	}
	if err := s.rollDay(ctx, p, txn.Timestamp); err != nil {
		return err
	}

	// 6. Live windows.
	if err := s.counters.BumpTxn(ctx, p.ClientID, txn.Timestamp, txn.AmountPaise); err != nil {
		return err
	}

	// 7. Beneficiary dimension.
	if key := txn.BeneficiaryKey(); key != "" {
		if p.BeneTxnCounts[key] == 0 {
			p.DistinctBeneficiaryCount++
			if _, err := s.counters.BumpNewBene(ctx, p.ClientID, txn.Timestamp); err != nil {
				return err
			}
		}
		p.BeneTxnCounts[key]++
		bn := p.BeneTxnCounts[key]
		p.EwmaAmountByBene[key] = ewma(p.EwmaAmountByBene[key], amount, s.alpha)
		p.MeanAmountByBene[key], p.AmountM2ByBene[key] =
			welford(p.MeanAmountByBene[key], p.AmountM2ByBene[key], bn, amount)

		if err := s.counters.BumpBene(ctx, p.ClientID, key, txn.Timestamp, txn.AmountPaise); err != nil {
			return err
		}
	}

	// 8. Best-effort persist.
	p.LastUpdated = s.now().UnixMilli()
	if err := s.Persist(ctx, p); err != nil {
		log.Error().Str("clientId", p.ClientID).Err(err).
			Msg("profile persist failed; continuing with in-memory profile")
	}
	return nil
}

// rollHour absorbs the completed hour when the transaction crosses an hour
// boundary. Bucket strings only move forward: a late transaction from an
// already-completed hour never rewinds the rollover state.
func (s *Service) rollHour(ctx context.Context, p *models.ClientProfile, tsMillis int64) error {
	hb := HourBucket(tsMillis)
	if p.LastHourBucket == "" {
		p.LastHourBucket = hb
		return nil
	}
	if hb <= p.LastHourBucket {
		return nil
	}

	rec, err := s.counters.HourlyAt(ctx, p.ClientID, p.LastHourBucket)
	if err != nil {
		return err
	}
	a := s.rolloverAlpha()
	tps := float64(rec.Count)
	amt := float64(rec.TotalAmount) / 100.0

	p.CompletedHoursCount++
	p.EwmaHourlyTps = ewma(p.EwmaHourlyTps, tps, a)
	p.MeanHourlyTps, p.TpsM2 = welford(p.MeanHourlyTps, p.TpsM2, p.CompletedHoursCount, tps)
	p.EwmaHourlyAmount = ewma(p.EwmaHourlyAmount, amt, a)
	p.MeanHourlyAmount, p.HourlyAmountM2 = welford(p.MeanHourlyAmount, p.HourlyAmountM2, p.CompletedHoursCount, amt)

	// The completed hour feeds ITS hour-of-day slot, not the current one.
	h := bucketHourOfDay(p.LastHourBucket)
	p.HourOfDayTps[h].Ewma = ewma(p.HourOfDayTps[h].Ewma, tps, a)
	p.HourOfDayTps[h].Count++
	p.HourOfDayAmount[h].Ewma = ewma(p.HourOfDayAmount[h].Ewma, amt, a)
	p.HourOfDayAmount[h].Count++

	p.LastHourBucket = hb
	return nil
}

// rollDay absorbs the completed day: amount and TPS into the daily baselines
// and day-of-week slots, and the previous day's new-beneficiary counter into
// the velocity baseline.
func (s *Service) rollDay(ctx context.Context, p *models.ClientProfile, tsMillis int64) error {
	db := DayBucket(tsMillis)
	if p.LastDayBucket == "" {
		p.LastDayBucket = db
		return nil
	}
	if db <= p.LastDayBucket {
		return nil
	}

	rec, err := s.counters.DailyAt(ctx, p.ClientID, p.LastDayBucket)
	if err != nil {
		return err
	}
	newBene, err := s.counters.NewBeneAt(ctx, p.ClientID, p.LastDayBucket)
	if err != nil {
		return err
	}
	a := s.rolloverAlpha()
	amt := float64(rec.TotalAmount) / 100.0
	dayTps := float64(rec.Count)

	p.CompletedDaysCount++
	p.EwmaDailyAmount = ewma(p.EwmaDailyAmount, amt, a)
	p.MeanDailyAmount, p.DailyAmountM2 = welford(p.MeanDailyAmount, p.DailyAmountM2, p.CompletedDaysCount, amt)

	p.CompletedDaysForBeneCount++
	p.EwmaDailyNewBeneficiaries = ewma(p.EwmaDailyNewBeneficiaries, float64(newBene), a)
	p.MeanDailyNewBene, p.DailyNewBeneM2 = welford(p.MeanDailyNewBene, p.DailyNewBeneM2,
		p.CompletedDaysForBeneCount, float64(newBene))

	d := bucketDayOfWeek(p.LastDayBucket)
	p.DayOfWeekTps[d].Ewma = ewma(p.DayOfWeekTps[d].Ewma, dayTps, a)
	p.DayOfWeekTps[d].Count++
	p.DayOfWeekAmount[d].Ewma = ewma(p.DayOfWeekAmount[d].Ewma, amt, a)
	p.DayOfWeekAmount[d].Count++

	p.LastDayBucket = db
	return nil
}
