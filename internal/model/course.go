package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is the slice of the `courses` table the payment core reads. Course
// management lives elsewhere; this package never writes courses.
type Course struct {
	ID         uint64          // courses.id
	Title      string          // courses.title
	Price      decimal.Decimal // courses.price
	SubadminID *uint64         // courses.subadmin_id (nullable), commission beneficiary
}

// Enrollment grants a user access to a course. Unique per (user, course).
type Enrollment struct {
	ID        uint64    // enrollments.id
	UserID    uint64    // enrollments.user_id
	CourseID  uint64    // enrollments.course_id
	CreatedAt time.Time // enrollments.created_at
}

// Commission records the share of a payment owed to the course subadmin.
// At most one exists per payment.
type Commission struct {
	ID            uint64          // commissions.id
	BeneficiaryID uint64          // commissions.beneficiary_id
	PaymentID     uint64          // commissions.payment_id
	Amount        decimal.Decimal // commissions.amount
	Percentage    int             // commissions.percentage
	CreatedAt     time.Time       // commissions.created_at
}
