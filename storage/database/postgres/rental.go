package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/rental"
)

var (
	rentalColumns = []string{
		"id", "code", "user_id", "status", "start_date", "end_date", "total", "penalty_total", "late_hours",
		"notes", "payment_proof", "confirmed_at", "confirmed_by", "returned_at", "completed_at", "cancelled_at",
		"created_at", "updated_at",
	}
	rentalItemColumns = []string{
		"id", "rental_id", "item_id", "item_name", "quantity", "price_per_day", "start_date", "end_date",
		"days", "subtotal", "penalty_rate", "late_hours", "penalty",
	}
	paymentColumns = []string{"id", "rental_id", "kind", "amount", "status", "proof_path", "note", "created_at", "verified_at"}
)

type rentalRow struct {
	ID           string          `db:"id"`
	Code         string          `db:"code"`
	UserID       string          `db:"user_id"`
	Status       string          `db:"status"`
	StartDate    time.Time       `db:"start_date"`
	EndDate      time.Time       `db:"end_date"`
	Total        decimal.Decimal `db:"total"`
	PenaltyTotal decimal.Decimal `db:"penalty_total"`
	LateHours    int             `db:"late_hours"`
	Notes        string          `db:"notes"`
	PaymentProof string          `db:"payment_proof"`
	ConfirmedAt  null.Time       `db:"confirmed_at"`
	ConfirmedBy  null.String     `db:"confirmed_by"`
	ReturnedAt   null.Time       `db:"returned_at"`
	CompletedAt  null.Time       `db:"completed_at"`
	CancelledAt  null.Time       `db:"cancelled_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

type rentalItemRow struct {
	ID          string              `db:"id"`
	RentalID    string              `db:"rental_id"`
	ItemID      string              `db:"item_id"`
	ItemName    string              `db:"item_name"`
	Quantity    int                 `db:"quantity"`
	PricePerDay decimal.Decimal     `db:"price_per_day"`
	StartDate   time.Time           `db:"start_date"`
	EndDate     time.Time           `db:"end_date"`
	Days        int                 `db:"days"`
	Subtotal    decimal.Decimal     `db:"subtotal"`
	PenaltyRate decimal.NullDecimal `db:"penalty_rate"`
	LateHours   int                 `db:"late_hours"`
	Penalty     decimal.Decimal     `db:"penalty"`
}

type paymentRow struct {
	ID         string          `db:"id"`
	RentalID   string          `db:"rental_id"`
	Kind       string          `db:"kind"`
	Amount     decimal.Decimal `db:"amount"`
	Status     string          `db:"status"`
	ProofPath  string          `db:"proof_path"`
	Note       string          `db:"note"`
	CreatedAt  time.Time       `db:"created_at"`
	VerifiedAt null.Time       `db:"verified_at"`
}

type rentalRepository struct {
	repo
}

var _ rental.Repository = (*rentalRepository)(nil) // interface compliance check

func NewRentalRepository(exec core.DBExecutor) rental.Repository {
	return &rentalRepository{repo{exec: exec}}
}

func (repo *rentalRepository) CreateRental(ctx context.Context, r rental.Rental, exec ...core.DBExecutor) (rental.Rental, error) {
	exe := repo.getExec(exec)
	if r.ID == "" {
		r.ID = newID()
	}
	row := boilRental(r)
	q := psql.Insert("rentals").Columns(rentalColumns...).Values(
		row.ID, row.Code, row.UserID, row.Status, row.StartDate, row.EndDate, row.Total, row.PenaltyTotal, row.LateHours,
		row.Notes, row.PaymentProof, row.ConfirmedAt, row.ConfirmedBy, row.ReturnedAt, row.CompletedAt, row.CancelledAt,
		row.CreatedAt, row.UpdatedAt,
	)
	if _, err := execStmt(ctx, exe, q); err != nil {
		if isUniqueViolation(err) {
			return rental.Rental{}, rental.ErrCodeTaken
		}
		return rental.Rental{}, errors.Wrap(err, "inserting rental")
	}

	if len(r.Items) > 0 {
		iq := psql.Insert("rental_items").Columns(rentalItemColumns...)
		for i := range r.Items {
			ri := &r.Items[i]
			if ri.ID == "" {
				ri.ID = newID()
			}
			ri.RentalID = r.ID
			iq = iq.Values(
				ri.ID, ri.RentalID, ri.ItemID, ri.ItemName, ri.Quantity, ri.PricePerDay, ri.StartDate, ri.EndDate,
				ri.Days, ri.Subtotal, nullDecimal(ri.PenaltyRate), ri.LateHours, ri.Penalty,
			)
		}
		if _, err := execStmt(ctx, exe, iq); err != nil {
			return rental.Rental{}, errors.Wrap(err, "inserting rental items")
		}
	}
	return r, nil
}

func (repo *rentalRepository) GetRental(ctx context.Context, id string, exec ...core.DBExecutor) (rental.Rental, error) {
	if !validID(id) {
		return rental.Rental{}, rental.ErrNotFound
	}
	exe := repo.getExec(exec)

	var row rentalRow
	if err := getRow(ctx, exe, &row, psql.Select(rentalColumns...).From("rentals").Where(sq.Eq{"id": id})); err != nil {
		return rental.Rental{}, trapNoRowsErr(err, rental.ErrNotFound, "getting rental")
	}
	rentals, err := repo.withItems(ctx, exe, []rentalRow{row})
	if err != nil {
		return rental.Rental{}, err
	}
	return rentals[0], nil
}

func rentalConditions(filter *rental.QueryFilter) sq.And {
	conds := sq.And{}
	if filter == nil {
		return conds
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, st := range filter.Status {
			statuses = append(statuses, string(st))
		}
		conds = append(conds, sq.Eq{"status": statuses})
	}
	if filter.UserID != "" {
		if validID(filter.UserID) {
			conds = append(conds, sq.Eq{"user_id": filter.UserID})
		} else {
			conds = append(conds, sq.Expr("FALSE"))
		}
	}
	if filter.Code != "" {
		conds = append(conds, sq.Like{"code": "%" + filter.Code + "%"})
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, sq.GtOrEq{"created_at": filter.CreatedFrom})
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, sq.LtOrEq{"created_at": filter.CreatedTo})
	}
	if !filter.EndBefore.IsZero() {
		conds = append(conds, sq.Lt{"end_date": filter.EndBefore})
	}
	return conds
}

func (repo *rentalRepository) QueryRentals(
	ctx context.Context,
	filter *rental.QueryFilter,
	ordering []core.DBOrdering,
	page *core.PageFilter,
	exec ...core.DBExecutor,
) ([]rental.Rental, int, error) {
	conds := rentalConditions(filter)
	exe := repo.getExec(exec)

	var count int
	if err := getRow(ctx, exe, &count, psql.Select("COUNT(*)").From("rentals").Where(conds)); err != nil {
		return nil, 0, errors.Wrap(err, "counting rentals")
	}

	q := psql.Select(rentalColumns...).From("rentals").Where(conds)
	if len(ordering) > 0 {
		q = q.OrderBy(orderBy(ordering)...)
	} else {
		q = q.OrderBy("created_at DESC")
	}

	var rows []rentalRow
	if err := selectRows(ctx, exe, &rows, pageOf(q, page)); err != nil {
		return nil, 0, errors.Wrap(err, "querying rentals")
	}
	rentals, err := repo.withItems(ctx, exe, rows)
	if err != nil {
		return nil, 0, err
	}
	return rentals, count, nil
}

// withItems unboils rows and loads their items in a single query.
func (repo *rentalRepository) withItems(ctx context.Context, exe core.DBExecutor, rows []rentalRow) ([]rental.Rental, error) {
	rentals := make([]rental.Rental, 0, len(rows))
	if len(rows) == 0 {
		return rentals, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var itemRows []rentalItemRow
	q := psql.Select(rentalItemColumns...).From("rental_items").
		Where(sq.Eq{"rental_id": ids}).
		OrderBy("start_date ASC", "item_name ASC")
	if err := selectRows(ctx, exe, &itemRows, q); err != nil {
		return nil, errors.Wrap(err, "getting rental items")
	}
	byRental := make(map[string][]rental.RentalItem, len(rows))
	for _, ir := range itemRows {
		byRental[ir.RentalID] = append(byRental[ir.RentalID], unboilRentalItem(ir))
	}

	for _, row := range rows {
		r := unboilRental(row)
		r.Items = byRental[row.ID]
		if r.Items == nil {
			r.Items = []rental.RentalItem{}
		}
		rentals = append(rentals, r)
	}
	return rentals, nil
}

func (repo *rentalRepository) UpdateRental(ctx context.Context, r rental.Rental, expected rental.Status, exec ...core.DBExecutor) (rental.Rental, error) {
	if !validID(r.ID) {
		return rental.Rental{}, rental.ErrNotFound
	}
	exe := repo.getExec(exec)
	row := boilRental(r)
	q := psql.Update("rentals").SetMap(map[string]interface{}{
		"status":        row.Status,
		"total":         row.Total,
		"penalty_total": row.PenaltyTotal,
		"late_hours":    row.LateHours,
		"notes":         row.Notes,
		"payment_proof": row.PaymentProof,
		"confirmed_at":  row.ConfirmedAt,
		"confirmed_by":  row.ConfirmedBy,
		"returned_at":   row.ReturnedAt,
		"completed_at":  row.CompletedAt,
		"cancelled_at":  row.CancelledAt,
		"updated_at":    row.UpdatedAt,
	}).Where(sq.Eq{"id": row.ID, "status": string(expected)})

	n, err := execStmt(ctx, exe, q)
	if err != nil {
		return rental.Rental{}, errors.Wrap(err, "updating rental")
	}
	if n == 0 {
		if _, err = repo.GetRental(ctx, r.ID, exe); err != nil {
			return rental.Rental{}, err
		}
		return rental.Rental{}, rental.ErrInvalidTransition
	}
	return r, nil
}

func (repo *rentalRepository) UpdateRentalItems(ctx context.Context, items []rental.RentalItem, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	for _, ri := range items {
		q := psql.Update("rental_items").SetMap(map[string]interface{}{
			"penalty_rate": nullDecimal(ri.PenaltyRate),
			"late_hours":   ri.LateHours,
			"penalty":      ri.Penalty,
		}).Where(sq.Eq{"id": ri.ID})
		n, err := execStmt(ctx, exe, q)
		if err != nil {
			return errors.Wrap(err, "updating rental item")
		}
		if n == 0 {
			return rental.ErrNotFound
		}
	}
	return nil
}

func (repo *rentalRepository) CreatePayment(ctx context.Context, p rental.Payment, exec ...core.DBExecutor) (rental.Payment, error) {
	if !validID(p.RentalID) {
		return rental.Payment{}, rental.ErrNotFound
	}
	if p.ID == "" {
		p.ID = newID()
	}
	q := psql.Insert("payments").Columns(paymentColumns...).Values(
		p.ID, p.RentalID, string(p.Kind), p.Amount, string(p.Status), p.ProofPath, p.Note, p.CreatedAt,
		null.TimeFromPtr(p.VerifiedAt),
	)
	if _, err := execStmt(ctx, repo.getExec(exec), q); err != nil {
		if isForeignKeyViolation(err) {
			return rental.Payment{}, rental.ErrNotFound
		}
		return rental.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *rentalRepository) UpdatePayment(ctx context.Context, p rental.Payment, exec ...core.DBExecutor) (rental.Payment, error) {
	if !validID(p.ID) {
		return rental.Payment{}, rental.ErrPaymentNotFound
	}
	q := psql.Update("payments").SetMap(map[string]interface{}{
		"amount":      p.Amount,
		"status":      string(p.Status),
		"proof_path":  p.ProofPath,
		"note":        p.Note,
		"verified_at": null.TimeFromPtr(p.VerifiedAt),
	}).Where(sq.Eq{"id": p.ID})

	n, err := execStmt(ctx, repo.getExec(exec), q)
	if err != nil {
		return rental.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n == 0 {
		return rental.Payment{}, rental.ErrPaymentNotFound
	}
	return p, nil
}

func (repo *rentalRepository) QueryPayments(ctx context.Context, rentalID string, exec ...core.DBExecutor) ([]rental.Payment, error) {
	payments := make([]rental.Payment, 0)
	if !validID(rentalID) {
		return payments, nil
	}
	var rows []paymentRow
	q := psql.Select(paymentColumns...).From("payments").Where(sq.Eq{"rental_id": rentalID}).OrderBy("created_at ASC")
	if err := selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	for _, row := range rows {
		p := rental.Payment{
			ID:        row.ID,
			RentalID:  row.RentalID,
			Kind:      rental.PaymentKind(row.Kind),
			Amount:    row.Amount,
			Status:    rental.PaymentStatus(row.Status),
			ProofPath: row.ProofPath,
			Note:      row.Note,
			CreatedAt: row.CreatedAt.UTC(),
		}
		p.VerifiedAt = timePtr(row.VerifiedAt)
		payments = append(payments, p)
	}
	return payments, nil
}

func (repo *rentalRepository) Stats(ctx context.Context, now time.Time, exec ...core.DBExecutor) (rental.Stats, error) {
	exe := repo.getExec(exec)
	stats := rental.Stats{
		ByStatus:       make(map[rental.Status]int, len(rental.AllStatuses)),
		RentalRevenue:  decimal.Zero,
		PenaltyRevenue: decimal.Zero,
	}
	for _, st := range rental.AllStatuses {
		stats.ByStatus[st] = 0
	}

	var byStatus []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	q := psql.Select("status", "COUNT(*) AS count").From("rentals").GroupBy("status")
	if err := selectRows(ctx, exe, &byStatus, q); err != nil {
		return rental.Stats{}, errors.Wrap(err, "counting rentals by status")
	}
	for _, s := range byStatus {
		stats.ByStatus[rental.Status(s.Status)] = s.Count
	}

	var revenue []struct {
		Kind  string          `db:"kind"`
		Total decimal.Decimal `db:"total"`
	}
	q = psql.Select("kind", "COALESCE(SUM(amount), 0) AS total").From("payments").
		Where(sq.Eq{"status": string(rental.PaymentVerified)}).GroupBy("kind")
	if err := selectRows(ctx, exe, &revenue, q); err != nil {
		return rental.Stats{}, errors.Wrap(err, "summing revenue")
	}
	for _, rev := range revenue {
		switch rental.PaymentKind(rev.Kind) {
		case rental.PaymentKindRental:
			stats.RentalRevenue = rev.Total
		case rental.PaymentKindPenalty:
			stats.PenaltyRevenue = rev.Total
		}
	}

	q = psql.Select("COUNT(*)").From("rentals").
		Where(sq.Eq{"status": string(rental.StatusConfirmed)}).
		Where(sq.Lt{"end_date": now})
	if err := getRow(ctx, exe, &stats.Overdue, q); err != nil {
		return rental.Stats{}, errors.Wrap(err, "counting overdue rentals")
	}
	return stats, nil
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func boilRental(r rental.Rental) rentalRow {
	return rentalRow{
		ID:           r.ID,
		Code:         r.Code,
		UserID:       r.UserID,
		Status:       string(r.Status),
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		Total:        r.Total,
		PenaltyTotal: r.PenaltyTotal,
		LateHours:    r.LateHours,
		Notes:        r.Notes,
		PaymentProof: r.PaymentProof,
		ConfirmedAt:  null.TimeFromPtr(r.ConfirmedAt),
		ConfirmedBy:  null.NewString(r.ConfirmedBy, validID(r.ConfirmedBy)),
		ReturnedAt:   null.TimeFromPtr(r.ReturnedAt),
		CompletedAt:  null.TimeFromPtr(r.CompletedAt),
		CancelledAt:  null.TimeFromPtr(r.CancelledAt),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func unboilRental(row rentalRow) rental.Rental {
	return rental.Rental{
		ID:           row.ID,
		Code:         row.Code,
		UserID:       row.UserID,
		Status:       rental.Status(row.Status),
		StartDate:    row.StartDate.UTC(),
		EndDate:      row.EndDate.UTC(),
		Total:        row.Total,
		PenaltyTotal: row.PenaltyTotal,
		LateHours:    row.LateHours,
		Notes:        row.Notes,
		PaymentProof: row.PaymentProof,
		ConfirmedAt:  timePtr(row.ConfirmedAt),
		ConfirmedBy:  row.ConfirmedBy.String,
		ReturnedAt:   timePtr(row.ReturnedAt),
		CompletedAt:  timePtr(row.CompletedAt),
		CancelledAt:  timePtr(row.CancelledAt),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func unboilRentalItem(row rentalItemRow) rental.RentalItem {
	return rental.RentalItem{
		ID:          row.ID,
		RentalID:    row.RentalID,
		ItemID:      row.ItemID,
		ItemName:    row.ItemName,
		Quantity:    row.Quantity,
		PricePerDay: row.PricePerDay,
		StartDate:   row.StartDate.UTC(),
		EndDate:     row.EndDate.UTC(),
		Days:        row.Days,
		Subtotal:    row.Subtotal,
		PenaltyRate: decimalPtr(row.PenaltyRate),
		LateHours:   row.LateHours,
		Penalty:     row.Penalty,
	}
}
