package model

import "time"

type LoanStatus string

const (
	LoanPending  LoanStatus = "PENDING"
	LoanApproved LoanStatus = "APPROVED"
	LoanRejected LoanStatus = "REJECTED"
	LoanBorrowed LoanStatus = "BORROWED"
	LoanReturned LoanStatus = "RETURNED"
	LoanOverdue  LoanStatus = "OVERDUE" // derived on read, never persisted
)

type Loan struct {
	BaseModel
	EquipmentID     string     `db:"equipment_id" json:"equipment_id"`
	BorrowerID      string     `db:"borrower_id" json:"borrower_id"`
	Quantity        int        `db:"quantity" json:"quantity"`
	Deadline        time.Time  `db:"deadline" json:"deadline"`
	Purpose         string     `db:"purpose" json:"purpose"`
	Status          LoanStatus `db:"status" json:"status"`
	ApprovedBy      *string    `db:"approved_by" json:"approved_by"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at"`
	RejectedBy      *string    `db:"rejected_by" json:"rejected_by"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason"`
	TakenBy         *string    `db:"taken_by" json:"taken_by"`
	TakenAt         *time.Time `db:"taken_at" json:"taken_at"`
}

// IsOverdue reports whether a borrowed loan is past its deadline date at now.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.Status == LoanBorrowed && DateOf(now).After(DateOf(l.Deadline))
}

// EffectiveStatus is the status readers should see.
func (l Loan) EffectiveStatus(now time.Time) LoanStatus {
	if l.IsOverdue(now) {
		return LoanOverdue
	}
	return l.Status
}

// WithDerivedStatus returns a copy of l whose Status is the effective status.
func (l Loan) WithDerivedStatus(now time.Time) Loan {
	l.Status = l.EffectiveStatus(now)
	return l
}
