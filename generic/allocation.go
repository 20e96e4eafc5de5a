/*
allocation.go - Priority-ordered greedy split of a required amount

PURPOSE:
  A debit often spans several credits. Given the credits already ordered by
  priority (for vacation: soonest expiry first, then lowest id), this file
  decides how much to take from each one. It is pure: no store, no locks, no
  side effects. Callers apply the resulting allocations themselves.

EXAMPLE:
  Buckets (in order): A=1.0, B=5.0
  Required:           1.0
  Result:             [A: 1.0], shortfall 0   (B untouched)

  Buckets (in order): A=1.0, B=0.0, C=2.5
  Required:           2.0
  Result:             [A: 1.0, C: 1.0], shortfall 0   (empty B skipped)

SEE ALSO:
  - vacation/allocation.go: Locks grants, calls Distribute, writes deductions
*/
package generic

// =============================================================================
// BUCKET - A keyed source of balance
// =============================================================================

// Bucket is one source of balance, identified by Key.
type Bucket[K comparable] struct {
	Key       K
	Available Amount
}

// Allocation is the amount taken from one bucket.
type Allocation[K comparable] struct {
	Key    K
	Amount Amount
}

// Distribution is the outcome of a split.
type Distribution[K comparable] struct {
	Requested   Amount
	Allocations []Allocation[K]

	// Shortfall is what could not be covered. Zero when satisfiable.
	Shortfall Amount
}

// IsSatisfiable returns true if the whole request was covered.
func (d Distribution[K]) IsSatisfiable() bool { return !d.Shortfall.IsPositive() }

// Allocated returns the total of all allocations.
func (d Distribution[K]) Allocated() Amount {
	total := d.Requested.Zero()
	for _, a := range d.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// =============================================================================
// DISTRIBUTE
// =============================================================================

// Distribute walks buckets in the given order and takes
// min(bucket.Available, remaining) from each until nothing remains.
// Buckets with no positive balance are skipped. The order of buckets is the
// priority; Distribute never reorders.
func Distribute[K comparable](required Amount, buckets []Bucket[K]) Distribution[K] {
	var allocations []Allocation[K]
	remaining := required

	for _, b := range buckets {
		if !remaining.IsPositive() {
			break
		}
		if !b.Available.IsPositive() {
			continue
		}

		take := remaining.Min(b.Available)
		allocations = append(allocations, Allocation[K]{Key: b.Key, Amount: take})
		remaining = remaining.Sub(take)
	}

	if remaining.IsNegative() {
		remaining = remaining.Zero()
	}

	return Distribution[K]{
		Requested:   required,
		Allocations: allocations,
		Shortfall:   remaining,
	}
}

// TotalAvailable sums the positive balances of buckets.
func TotalAvailable[K comparable](buckets []Bucket[K]) Amount {
	total := ZeroDays()
	for i, b := range buckets {
		if i == 0 {
			total = b.Available.Zero()
		}
		if b.Available.IsPositive() {
			total = total.Add(b.Available)
		}
	}
	return total
}
