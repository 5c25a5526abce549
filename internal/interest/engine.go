package interest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

const moneyPlaces = 2

var daysPerYearPercent = decimal.NewFromInt(36500)

// DueContribution is the interest one due accrued.
type DueContribution struct {
	// Days counts the days on which the due was the accruing one.
	Days     int
	Interest decimal.Decimal
	// Active is set when the due had a non-empty accrual window.
	Active   bool
	// Through is the end of that window. Billing advances BilledThrough to it.
	Through  time.Time
}

// Result holds per-due and per-account interest. Every value is rounded once.
type Result struct {
	PerDue     map[int64]DueContribution
	PerAccount map[int64]decimal.Decimal
}

type window struct {
	due        Due
	start, end time.Time
}

type accrual struct {
	days     int
	interest decimal.Decimal
}

// ComputeContributions runs the sweep-line accrual per account: the timeline is
// cut at every window boundary and each segment accrues simple interest for the
// single largest open due only (earlier due date, then lower id, break ties).
// Windows start where the previous billing of the account stopped. Settled dues
// are ignored.
func ComputeContributions(dues []Due, today time.Time, ratePercent decimal.Decimal) Result {
	res := Result{
		PerDue:     make(map[int64]DueContribution, len(dues)),
		PerAccount: make(map[int64]decimal.Decimal),
	}
	byAccount := make(map[int64][]Due)
	for _, d := range dues {
		res.PerDue[d.ID] = DueContribution{Interest: decimal.Zero}
		if _, ok := res.PerAccount[d.AccountID]; !ok {
			res.PerAccount[d.AccountID] = decimal.Zero
		}
		byAccount[d.AccountID] = append(byAccount[d.AccountID], d)
	}
	cutoff := shared.Day(today)
	for accountID, accountDues := range byAccount {
		if !accountDues[0].InterestEligible {
			continue
		}
		windows := openWindows(accountDues, cutoff)
		if len(windows) == 0 {
			continue
		}
		perDue := sweep(windows, ratePercent)
		total := decimal.Zero
		for _, w := range windows {
			acc := perDue[w.due.ID]
			total = total.Add(acc.interest)
			res.PerDue[w.due.ID] = DueContribution{
				Days:     acc.days,
				Interest: acc.interest.Round(moneyPlaces),
				Active:   true,
				Through:  w.end,
			}
		}
		res.PerAccount[accountID] = total.Round(moneyPlaces)
	}
	return res
}

// openWindows returns the unbilled part of every due's accrual window. Each
// window starts no earlier than the latest billed-through date of the account,
// so a backdated due cannot reopen days that were already charged.
func openWindows(dues []Due, cutoff time.Time) []window {
	var floor time.Time
	for _, d := range dues {
		if !d.InterestBilled && d.BilledThrough != nil && d.BilledThrough.After(floor) {
			floor = shared.Day(*d.BilledThrough)
		}
	}
	out := make([]window, 0, len(dues))
	for _, d := range dues {
		if d.InterestBilled {
			continue
		}
		start := shared.Day(d.DueDate)
		if d.BilledThrough != nil && d.BilledThrough.After(start) {
			start = shared.Day(*d.BilledThrough)
		}
		if floor.After(start) {
			start = floor
		}
		end := cutoff
		if d.Paid {
			if d.PaidAt == nil {
				continue
			}
			if paid := shared.Day(*d.PaidAt); paid.Before(end) {
				end = paid
			}
		}
		if shared.DaysBetween(start, end) <= 0 {
			continue
		}
		out = append(out, window{due: d, start: start, end: end})
	}
	return out
}

func sweep(windows []window, ratePercent decimal.Decimal) map[int64]*accrual {
	perDue := make(map[int64]*accrual, len(windows))
	for _, w := range windows {
		perDue[w.due.ID] = &accrual{interest: decimal.Zero}
	}
	bounds := boundaries(windows)
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]
		days := shared.DaysBetween(segStart, segEnd)
		if days <= 0 {
			continue
		}
		top, ok := topDue(windows, segStart)
		if !ok {
			continue
		}
		acc := perDue[top.ID]
		acc.days += days
		acc.interest = acc.interest.Add(top.Amount.Mul(ratePercent).Mul(decimal.NewFromInt(int64(days))).Div(daysPerYearPercent))
	}
	return perDue
}

func boundaries(windows []window) []time.Time {
	seen := make(map[int64]bool, len(windows)*2)
	out := make([]time.Time, 0, len(windows)*2)
	for _, w := range windows {
		for _, t := range []time.Time{w.start, w.end} {
			if seen[t.Unix()] {
				continue
			}
			seen[t.Unix()] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// topDue picks the largest due whose window covers at.
func topDue(windows []window, at time.Time) (Due, bool) {
	var best Due
	found := false
	for _, w := range windows {
		if at.Before(w.start) || !at.Before(w.end) {
			continue
		}
		if !found || outranks(w.due, best) {
			best = w.due
			found = true
		}
	}
	return best, found
}

func outranks(a, b Due) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	if !a.DueDate.Equal(b.DueDate) {
		return a.DueDate.Before(b.DueDate)
	}
	return a.ID < b.ID
}
