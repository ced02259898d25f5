package rental

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("rental not found")
	ErrPaymentNotFound = errors.New("no pending payment for this rental")
	ErrCodeTaken       = errors.New("rental code already taken")

	NowFunc  = time.Now // mockable
	CodeFunc = NewCode  // mockable
)

type (
	Repository interface {
		CreateRental(ctx context.Context, r Rental, exec ...core.DBExecutor) (Rental, error)
		GetRental(ctx context.Context, id string, exec ...core.DBExecutor) (Rental, error)
		// QueryRentals returns a page of rentals plus the total count; a nil page returns them all.
		QueryRentals(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.PageFilter, exec ...core.DBExecutor) ([]Rental, int, error)
		// UpdateRental saves r only if its stored status is still `expected`, failing with ErrInvalidTransition otherwise.
		UpdateRental(ctx context.Context, r Rental, expected Status, exec ...core.DBExecutor) (Rental, error)
		UpdateRentalItems(ctx context.Context, items []RentalItem, exec ...core.DBExecutor) error

		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, rentalID string, exec ...core.DBExecutor) ([]Payment, error)

		Stats(ctx context.Context, now time.Time, exec ...core.DBExecutor) (Stats, error)
	}

	// Metrics records rental lifecycle events.
	Metrics interface {
		CheckedOut(total decimal.Decimal)
		Confirmed()
		Cancelled()
		Returned(lateHours int, penalty decimal.Decimal)
	}

	Service interface {
		Checkout(ctx context.Context, userID string, c Checkout) (Rental, error)
		UploadPaymentProof(ctx context.Context, actor user.User, rentalID string, file io.Reader, filename string) (Rental, error)
		Confirm(ctx context.Context, rentalID, adminID string) (Rental, error)
		RejectPayment(ctx context.Context, rentalID string, rp RejectPayment) (Rental, error)
		Cancel(ctx context.Context, actor user.User, rentalID string) (Rental, error)
		PreviewReturn(ctx context.Context, rentalID string, returnedAt time.Time) (ReturnBreakdown, error)
		Return(ctx context.Context, rentalID string, returnedAt time.Time) (Rental, ReturnBreakdown, error)
		Complete(ctx context.Context, rentalID string) (Rental, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering, page core.PageFilter) (core.Page[Rental], error)
		Get(ctx context.Context, actor user.User, id string) (Rental, error)
		Payments(ctx context.Context, actor user.User, rentalID string) ([]Payment, error)
		Overdue(ctx context.Context, now time.Time) ([]Rental, error)
		SendOverdueReminders(ctx context.Context, rentals []Rental) int
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		repo       Repository
		tx         core.Transactor
		cartSvc    cart.Service
		catalogSvc catalog.Service
		userSvc    user.Service
		mailSvc    core.EmailService
		files      core.FileStore
		metrics    Metrics
		logger     core.Logger
		policy     PenaltyPolicy
		loc        *time.Location
	}
)

var _ Service = (*service)(nil)

type Deps struct {
	Repo       Repository
	Tx         core.Transactor
	CartSvc    cart.Service
	CatalogSvc catalog.Service
	UserSvc    user.Service
	MailSvc    core.EmailService
	Files      core.FileStore
	Metrics    Metrics
	Logger     core.Logger
	Conf       *core.Config
}

func NewService(deps Deps) Service {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &service{
		repo:       deps.Repo,
		tx:         deps.Tx,
		cartSvc:    deps.CartSvc,
		catalogSvc: deps.CatalogSvc,
		userSvc:    deps.UserSvc,
		mailSvc:    deps.MailSvc,
		files:      deps.Files,
		metrics:    metrics,
		logger:     deps.Logger,
		policy: PenaltyPolicy{
			DefaultRate: deps.Conf.Rental.DefaultPenaltyPerHour,
			GracePeriod: deps.Conf.Rental.PenaltyGracePeriod,
		},
		loc: deps.Conf.Rental.Location,
	}
}

func now() time.Time { return NowFunc().UTC() }

// Checkout turns the user's cart into a pending rental. Prices & item names are snapshotted.
func (svc *service) Checkout(ctx context.Context, userID string, c Checkout) (Rental, error) {
	var (
		r   Rental
		err error
	)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if r, err = svc.checkout(ctx, userID, c); !errors.Is(err, ErrCodeTaken) {
			break
		}
	}
	if err != nil {
		return Rental{}, err
	}

	svc.metrics.CheckedOut(r.Total)
	svc.notifyCustomer(ctx, r, "rental_created", "Rental "+r.Code+" received", nil)
	return r, nil
}

// maxCodeAttempts bounds how many fresh codes Checkout tries when one is already taken.
const maxCodeAttempts = 3

func (svc *service) checkout(ctx context.Context, userID string, c Checkout) (Rental, error) {
	var r Rental
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		crt, err := svc.cartSvc.Get(ctx, userID, exec)
		if err != nil {
			return err
		}
		if len(crt.Lines) == 0 {
			return core.NewFieldValidationError("items", cart.ErrEmptyCart.Error())
		}

		ts := now()
		r = Rental{
			Code:         CodeFunc(ts),
			UserID:       userID,
			Status:       StatusPending,
			Total:        crt.Total,
			PenaltyTotal: decimal.Zero,
			Notes:        c.Notes,
			CreatedAt:    ts,
			UpdatedAt:    ts,
			Items:        make([]RentalItem, 0, len(crt.Lines)),
		}
		if err = cart.ValidateLines(crt.Lines, svc.loc); err != nil {
			return err
		}
		for i, l := range crt.Lines {
			if i == 0 || l.StartDate.Before(r.StartDate) {
				r.StartDate = l.StartDate
			}
			if l.EndDate.After(r.EndDate) {
				r.EndDate = l.EndDate
			}
			r.Items = append(r.Items, RentalItem{
				ItemID:      l.ItemID,
				ItemName:    l.Item.Name,
				Quantity:    l.Quantity,
				PricePerDay: l.Item.PricePerDay,
				StartDate:   l.StartDate,
				EndDate:     l.EndDate,
				Days:        l.Days,
				Subtotal:    l.Subtotal,
				Penalty:     decimal.Zero,
			})
		}

		if r, err = svc.repo.CreateRental(ctx, r, exec); err != nil {
			if err == ErrCodeTaken {
				return err
			}
			return pkgerrors.Wrap(err, "creating rental")
		}
		return svc.cartSvc.Clear(ctx, userID, exec)
	})
	if err != nil {
		return Rental{}, err
	}
	return r, nil
}

func (svc *service) UploadPaymentProof(ctx context.Context, actor user.User, rentalID string, file io.Reader, filename string) (Rental, error) {
	r, err := svc.Get(ctx, actor, rentalID)
	if err != nil {
		return Rental{}, err
	}
	if err = checkTransition(r.Status, StatusWaitingConfirmation); err != nil {
		return Rental{}, err
	}

	proof, err := svc.files.Save(ctx, file, filename, core.ProofContentTypes...)
	if err != nil {
		return Rental{}, err
	}

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		ts := now()
		if _, err := svc.repo.CreatePayment(ctx, Payment{
			RentalID:  r.ID,
			Kind:      PaymentKindRental,
			Amount:    r.Total,
			Status:    PaymentPending,
			ProofPath: proof,
			CreatedAt: ts,
		}, exec); err != nil {
			return pkgerrors.Wrap(err, "creating payment")
		}

		r.PaymentProof = proof
		r.Status = StatusWaitingConfirmation
		r.UpdatedAt = ts
		r, err = svc.repo.UpdateRental(ctx, r, StatusPending, exec)
		return err
	})
	if err != nil {
		if delErr := svc.files.Delete(ctx, proof); delErr != nil {
			svc.logger.Warn("rental.UploadPaymentProof: deleting orphan proof", delErr)
		}
		return Rental{}, err
	}

	svc.notifyAdmins(ctx, r, "proof_received", "Payment proof received for "+r.Code)
	return r, nil
}

// Confirm verifies the rental payment and hands the items out, taking them from stock.
func (svc *service) Confirm(ctx context.Context, rentalID, adminID string) (Rental, error) {
	var r Rental
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if r, err = svc.repo.GetRental(ctx, rentalID, exec); err != nil {
			return err
		}
		if err = checkTransition(r.Status, StatusConfirmed); err != nil {
			return err
		}

		ts := now()
		r.Status = StatusConfirmed
		r.ConfirmedAt = &ts
		r.ConfirmedBy = adminID
		r.UpdatedAt = ts
		if r, err = svc.repo.UpdateRental(ctx, r, StatusWaitingConfirmation, exec); err != nil {
			return err
		}

		if err = svc.settlePayment(ctx, r.ID, PaymentKindRental, PaymentVerified, "", exec); err != nil {
			return err
		}

		for _, line := range quantitiesByItem(r.Items) {
			if err = svc.catalogSvc.AdjustStock(ctx, line.itemID, -line.qty, exec); err != nil {
				if err == catalog.ErrInsufficientStock {
					return core.NewFieldValidationError("items", "insufficient stock for "+line.name)
				}
				return pkgerrors.Wrap(err, "taking items from stock")
			}
		}
		return nil
	})
	if err != nil {
		return Rental{}, err
	}

	svc.metrics.Confirmed()
	svc.notifyCustomer(ctx, r, "rental_confirmed", "Rental "+r.Code+" confirmed", nil)
	return r, nil
}

// RejectPayment rejects the uploaded proof; the customer has to upload a new one.
func (svc *service) RejectPayment(ctx context.Context, rentalID string, rp RejectPayment) (Rental, error) {
	var r Rental
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if r, err = svc.repo.GetRental(ctx, rentalID, exec); err != nil {
			return err
		}
		if err = checkTransition(r.Status, StatusPending); err != nil {
			return err
		}
		if err = svc.settlePayment(ctx, r.ID, PaymentKindRental, PaymentRejected, rp.Note, exec); err != nil {
			return err
		}

		r.Status = StatusPending
		r.PaymentProof = ""
		r.UpdatedAt = now()
		r, err = svc.repo.UpdateRental(ctx, r, StatusWaitingConfirmation, exec)
		return err
	})
	if err != nil {
		return Rental{}, err
	}

	svc.notifyCustomer(ctx, r, "payment_rejected", "Payment for "+r.Code+" rejected", map[string]interface{}{"Note": rp.Note})
	return r, nil
}

func (svc *service) Cancel(ctx context.Context, actor user.User, rentalID string) (Rental, error) {
	r, err := svc.Get(ctx, actor, rentalID)
	if err != nil {
		return Rental{}, err
	}
	if err = checkTransition(r.Status, StatusCancelled); err != nil {
		return Rental{}, err
	}

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		prev := r.Status
		if prev == StatusWaitingConfirmation {
			if err := svc.settlePayment(ctx, r.ID, PaymentKindRental, PaymentRejected, "rental cancelled", exec); err != nil && err != ErrPaymentNotFound {
				return err
			}
		}
		ts := now()
		r.Status = StatusCancelled
		r.CancelledAt = &ts
		r.UpdatedAt = ts
		r, err = svc.repo.UpdateRental(ctx, r, prev, exec)
		return err
	})
	if err != nil {
		return Rental{}, err
	}

	svc.metrics.Cancelled()
	return r, nil
}

func (svc *service) PreviewReturn(ctx context.Context, rentalID string, returnedAt time.Time) (ReturnBreakdown, error) {
	r, err := svc.repo.GetRental(ctx, rentalID)
	if err != nil {
		return ReturnBreakdown{}, err
	}
	return svc.computeReturn(ctx, r, returnedAt)
}

func (svc *service) computeReturn(ctx context.Context, r Rental, returnedAt time.Time, exec ...core.DBExecutor) (ReturnBreakdown, error) {
	if err := checkTransition(r.Status, StatusReturned); err != nil {
		return ReturnBreakdown{}, err
	}
	if returnedAt.IsZero() {
		returnedAt = now()
	}
	returnedAt = returnedAt.UTC()
	if returnedAt.Before(r.StartDate) {
		return ReturnBreakdown{}, core.NewFieldValidationError("returned_at", "return date cannot be before the rental start date")
	}

	rates, err := svc.rateInputs(ctx, r, exec...)
	if err != nil {
		return ReturnBreakdown{}, err
	}
	return ComputeReturn(r, rates, returnedAt, svc.policy), nil
}

// Return marks the rental as returned: penalties are computed & saved, items go back in stock and,
// if anything is owed, a pending penalty payment is recorded. All of it happens atomically.
func (svc *service) Return(ctx context.Context, rentalID string, returnedAt time.Time) (Rental, ReturnBreakdown, error) {
	var (
		r  Rental
		bd ReturnBreakdown
	)
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if r, err = svc.repo.GetRental(ctx, rentalID, exec); err != nil {
			return err
		}
		if bd, err = svc.computeReturn(ctx, r, returnedAt, exec); err != nil {
			return err
		}

		bd.Apply(&r)
		if err = svc.repo.UpdateRentalItems(ctx, r.Items, exec); err != nil {
			return pkgerrors.Wrap(err, "saving item penalties")
		}
		r.Status = StatusReturned
		r.UpdatedAt = now()
		if r, err = svc.repo.UpdateRental(ctx, r, StatusConfirmed, exec); err != nil {
			return err
		}

		for _, line := range quantitiesByItem(r.Items) {
			if err = svc.catalogSvc.AdjustStock(ctx, line.itemID, line.qty, exec); err != nil {
				return pkgerrors.Wrap(err, "restoring stock")
			}
		}

		if bd.PenaltyTotal.IsPositive() {
			if _, err = svc.repo.CreatePayment(ctx, Payment{
				RentalID:  r.ID,
				Kind:      PaymentKindPenalty,
				Amount:    bd.PenaltyTotal,
				Status:    PaymentPending,
				CreatedAt: r.UpdatedAt,
			}, exec); err != nil {
				return pkgerrors.Wrap(err, "creating penalty payment")
			}
		}
		return nil
	})
	if err != nil {
		return Rental{}, ReturnBreakdown{}, err
	}

	svc.metrics.Returned(bd.LateHours, bd.PenaltyTotal)
	svc.notifyCustomer(ctx, r, "rental_returned", "Rental "+r.Code+" returned", map[string]interface{}{"Breakdown": bd})
	return r, bd, nil
}

// Complete closes a returned rental, settling its pending penalty payment if any.
func (svc *service) Complete(ctx context.Context, rentalID string) (Rental, error) {
	var r Rental
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if r, err = svc.repo.GetRental(ctx, rentalID, exec); err != nil {
			return err
		}
		if err = checkTransition(r.Status, StatusCompleted); err != nil {
			return err
		}
		err = svc.settlePayment(ctx, r.ID, PaymentKindPenalty, PaymentVerified, "", exec)
		if err != nil && err != ErrPaymentNotFound {
			return err
		}

		ts := now()
		r.Status = StatusCompleted
		r.CompletedAt = &ts
		r.UpdatedAt = ts
		r, err = svc.repo.UpdateRental(ctx, r, StatusReturned, exec)
		return err
	})
	if err != nil {
		return Rental{}, err
	}
	return r, nil
}

// settlePayment moves the pending payment of the given kind to status.
func (svc *service) settlePayment(ctx context.Context, rentalID string, kind PaymentKind, status PaymentStatus, note string, exec core.DBExecutor) error {
	payments, err := svc.repo.QueryPayments(ctx, rentalID, exec)
	if err != nil {
		return pkgerrors.Wrap(err, "querying payments")
	}
	for _, p := range payments {
		if p.Kind != kind || p.Status != PaymentPending {
			continue
		}
		p.Status = status
		p.Note = note
		if status == PaymentVerified {
			ts := now()
			p.VerifiedAt = &ts
		}
		if _, err = svc.repo.UpdatePayment(ctx, p, exec); err != nil {
			return pkgerrors.Wrap(err, "updating payment")
		}
		return nil
	}
	return ErrPaymentNotFound
}

// Query lists rentals. Customers only ever see their own.
func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering, page core.PageFilter) (core.Page[Rental], error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if !actor.IsAdmin() {
		filter.UserID = actor.ID
	}
	page.Clean()

	rentals, count, err := svc.repo.QueryRentals(ctx, filter, ordering, &page)
	if err != nil {
		return core.Page[Rental]{}, err
	}
	return core.NewPage(rentals, count, page), nil
}

// Get returns the rental if actor may see it.
func (svc *service) Get(ctx context.Context, actor user.User, id string) (Rental, error) {
	r, err := svc.repo.GetRental(ctx, id)
	if err != nil {
		return Rental{}, err
	}
	if !actor.IsAdmin() && r.UserID != actor.ID {
		return Rental{}, ErrNotFound
	}
	return r, nil
}

func (svc *service) Payments(ctx context.Context, actor user.User, rentalID string) ([]Payment, error) {
	r, err := svc.Get(ctx, actor, rentalID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, r.ID)
}

// Overdue returns the confirmed rentals that should have been returned by now.
func (svc *service) Overdue(ctx context.Context, now time.Time) ([]Rental, error) {
	filter := &QueryFilter{Status: []Status{StatusConfirmed}, EndBefore: now.UTC()}
	rentals, _, err := svc.repo.QueryRentals(ctx, filter, []core.DBOrdering{{Field: "end_date", Ascending: true}}, nil)
	return rentals, err
}

// SendOverdueReminders emails a reminder to the customer of each rental. Returns the number of reminders sent.
func (svc *service) SendOverdueReminders(ctx context.Context, rentals []Rental) int {
	var sent int
	for _, r := range rentals {
		if svc.notifyCustomer(ctx, r, "overdue_reminder", "Rental "+r.Code+" is overdue", nil) {
			sent++
		}
	}
	return sent
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.Stats(ctx, now())
}

func (svc *service) rateInputs(ctx context.Context, r Rental, exec ...core.DBExecutor) (map[string]RateInputs, error) {
	ids := make([]string, 0, len(r.Items))
	for _, ri := range r.Items {
		ids = append(ids, ri.ItemID)
	}
	items, err := svc.catalogSvc.GetItems(ctx, ids, exec...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting rented items")
	}
	catRates, err := svc.catalogSvc.PenaltyRates(ctx, items, exec...)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]RateInputs, len(items))
	for id, it := range items {
		rates[id] = RateInputs{Item: it.PenaltyPerHour, Category: catRates[id]}
	}
	return rates, nil
}

type itemQuantity struct {
	itemID string
	name   string
	qty    int
}

// quantitiesByItem sums quantities per catalog item, in a stable order.
func quantitiesByItem(items []RentalItem) []itemQuantity {
	byID := make(map[string]*itemQuantity)
	for _, ri := range items {
		if iq, ok := byID[ri.ItemID]; ok {
			iq.qty += ri.Quantity
			continue
		}
		byID[ri.ItemID] = &itemQuantity{itemID: ri.ItemID, name: ri.ItemName, qty: ri.Quantity}
	}
	res := make([]itemQuantity, 0, len(byID))
	for _, iq := range byID {
		res = append(res, *iq)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].itemID < res[j].itemID })
	return res
}

type NopMetrics struct{}

func (NopMetrics) CheckedOut(decimal.Decimal)    {}
func (NopMetrics) Confirmed()                    {}
func (NopMetrics) Cancelled()                    {}
func (NopMetrics) Returned(int, decimal.Decimal) {}
