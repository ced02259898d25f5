package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/rental"
)

type rentalRepository struct {
	db *DB
}

func NewRentalRepository(db *DB) rental.Repository {
	return &rentalRepository{db: db}
}

func (repo *rentalRepository) CreateRental(_ context.Context, r rental.Rental, exec ...core.DBExecutor) (rental.Rental, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.rentals {
		if other.Code == r.Code {
			return rental.Rental{}, rental.ErrCodeTaken
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	items := make([]rental.RentalItem, len(r.Items))
	for i, ri := range r.Items {
		if ri.ID == "" {
			ri.ID = newID()
		}
		ri.RentalID = r.ID
		put(repo.db.rentalItems, ri.ID, ri, exec)
		items[i] = ri
	}
	r.Items = nil
	put(repo.db.rentals, r.ID, r, exec)
	r.Items = items
	return r, nil
}

// withItems must be called with the read lock held.
func (repo *rentalRepository) withItems(r rental.Rental) rental.Rental {
	items := make([]rental.RentalItem, 0)
	for _, ri := range repo.db.rentalItems {
		if ri.RentalID == r.ID {
			items = append(items, ri)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartDate.Equal(items[j].StartDate) {
			return items[i].StartDate.Before(items[j].StartDate)
		}
		return items[i].ItemName < items[j].ItemName
	})
	r.Items = items
	return r
}

func (repo *rentalRepository) GetRental(_ context.Context, id string, _ ...core.DBExecutor) (rental.Rental, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	r, ok := repo.db.rentals[id]
	if !ok {
		return rental.Rental{}, rental.ErrNotFound
	}
	return repo.withItems(r), nil
}

func (repo *rentalRepository) QueryRentals(
	_ context.Context,
	filter *rental.QueryFilter,
	ordering []core.DBOrdering,
	page *core.PageFilter,
	_ ...core.DBExecutor,
) ([]rental.Rental, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rentals := make([]rental.Rental, 0, len(repo.db.rentals))
	for _, r := range repo.db.rentals {
		if filter == nil || matchRental(r, filter) {
			rentals = append(rentals, r)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	sort.SliceStable(rentals, func(i, j int) bool {
		return lessBy(ordering, func(field string) int { return compareRentals(rentals[i], rentals[j], field) })
	})

	count := len(rentals)
	rentals = paginate(rentals, page)
	for i := range rentals {
		rentals[i] = repo.withItems(rentals[i])
	}
	return rentals, count, nil
}

func matchRental(r rental.Rental, filter *rental.QueryFilter) bool {
	if len(filter.Status) > 0 {
		var found bool
		for _, st := range filter.Status {
			if r.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.UserID != "" && r.UserID != filter.UserID {
		return false
	}
	if filter.Code != "" && !strings.Contains(r.Code, filter.Code) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && r.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && r.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	if !filter.EndBefore.IsZero() && !r.EndDate.Before(filter.EndBefore) {
		return false
	}
	return true
}

func compareRentals(a, b rental.Rental, field string) int {
	switch field {
	case "code":
		return strings.Compare(a.Code, b.Code)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "start_date":
		return a.StartDate.Compare(b.StartDate)
	case "end_date":
		return a.EndDate.Compare(b.EndDate)
	case "total":
		return a.Total.Cmp(b.Total)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (repo *rentalRepository) UpdateRental(_ context.Context, r rental.Rental, expected rental.Status, exec ...core.DBExecutor) (rental.Rental, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.rentals[r.ID]
	if !ok {
		return rental.Rental{}, rental.ErrNotFound
	}
	if orig.Status != expected {
		return rental.Rental{}, rental.ErrInvalidTransition
	}
	items := r.Items
	r.Items = nil
	put(repo.db.rentals, r.ID, r, exec)
	r.Items = items
	return r, nil
}

func (repo *rentalRepository) UpdateRentalItems(_ context.Context, items []rental.RentalItem, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, ri := range items {
		if _, ok := repo.db.rentalItems[ri.ID]; !ok {
			return rental.ErrNotFound
		}
		put(repo.db.rentalItems, ri.ID, ri, exec)
	}
	return nil
}

func (repo *rentalRepository) CreatePayment(_ context.Context, p rental.Payment, exec ...core.DBExecutor) (rental.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rentals[p.RentalID]; !ok {
		return rental.Payment{}, rental.ErrNotFound
	}
	if p.ID == "" {
		p.ID = newID()
	}
	put(repo.db.payments, p.ID, p, exec)
	return p, nil
}

func (repo *rentalRepository) UpdatePayment(_ context.Context, p rental.Payment, exec ...core.DBExecutor) (rental.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.payments[p.ID]; !ok {
		return rental.Payment{}, rental.ErrPaymentNotFound
	}
	put(repo.db.payments, p.ID, p, exec)
	return p, nil
}

func (repo *rentalRepository) QueryPayments(_ context.Context, rentalID string, _ ...core.DBExecutor) ([]rental.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payments := make([]rental.Payment, 0)
	for _, p := range repo.db.payments {
		if p.RentalID == rentalID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

func (repo *rentalRepository) Stats(_ context.Context, now time.Time, _ ...core.DBExecutor) (rental.Stats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := rental.Stats{
		ByStatus:       make(map[rental.Status]int, len(rental.AllStatuses)),
		RentalRevenue:  decimal.Zero,
		PenaltyRevenue: decimal.Zero,
	}
	for _, st := range rental.AllStatuses {
		stats.ByStatus[st] = 0
	}
	for _, r := range repo.db.rentals {
		stats.ByStatus[r.Status]++
		if r.IsOverdue(now) {
			stats.Overdue++
		}
	}
	for _, p := range repo.db.payments {
		if p.Status != rental.PaymentVerified {
			continue
		}
		switch p.Kind {
		case rental.PaymentKindRental:
			stats.RentalRevenue = stats.RentalRevenue.Add(p.Amount)
		case rental.PaymentKindPenalty:
			stats.PenaltyRevenue = stats.PenaltyRevenue.Add(p.Amount)
		}
	}
	return stats, nil
}
