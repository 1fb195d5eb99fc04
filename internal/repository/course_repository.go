package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/paycore/internal/model"
)

// CourseRepo reads courses and writes enrollments. Courses themselves are
// managed by another service and are read-only here.
type CourseRepo struct{ db *sql.DB }

func NewCourseRepo(db *sql.DB) *CourseRepo { return &CourseRepo{db: db} }

func scanCourse(row rowScanner) (model.Course, error) {
	var (
		c          model.Course
		subadminID sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Price, &subadminID); err != nil {
		return model.Course{}, err
	}
	if subadminID.Valid {
		id := uint64(subadminID.Int64)
		c.SubadminID = &id
	}
	return c, nil
}

// GetByID fetches a course. A missing course is sql.ErrNoRows.
func (r *CourseRepo) GetByID(ctx context.Context, id uint64) (model.Course, error) {
	return scanCourse(r.db.QueryRowContext(ctx,
		"SELECT id, title, price, subadmin_id FROM courses WHERE id=? LIMIT 1", id))
}

// GetByIDTx is GetByID inside a transaction.
func (r *CourseRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Course, error) {
	return scanCourse(tx.QueryRowContext(ctx,
		"SELECT id, title, price, subadmin_id FROM courses WHERE id=? LIMIT 1", id))
}

// EnrollTx creates the enrollment of userID in courseID if it does not
// exist yet. It reports whether a row was created; an existing enrollment
// is returned untouched. A concurrent insert that loses the race on the
// unique (user_id, course_id) key is treated as already enrolled.
func (r *CourseRepo) EnrollTx(ctx context.Context, tx *sql.Tx, userID, courseID uint64) (model.Enrollment, bool, error) {
	e, err := r.enrollment(ctx, tx, userID, courseID)
	if err == nil {
		return e, false, nil
	}
	if err != sql.ErrNoRows {
		return model.Enrollment{}, false, err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO enrollments (user_id, course_id, created_at) VALUES (?,?,?)",
		userID, courseID, now)
	if err != nil {
		if isDuplicateKey(err) {
			e, err := r.enrollment(ctx, tx, userID, courseID)
			return e, false, err
		}
		return model.Enrollment{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Enrollment{}, false, err
	}
	return model.Enrollment{ID: uint64(id), UserID: userID, CourseID: courseID, CreatedAt: now}, true, nil
}

func (r *CourseRepo) enrollment(ctx context.Context, q execer, userID, courseID uint64) (model.Enrollment, error) {
	var e model.Enrollment
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, course_id, created_at FROM enrollments WHERE user_id=? AND course_id=? LIMIT 1",
		userID, courseID).Scan(&e.ID, &e.UserID, &e.CourseID, &e.CreatedAt)
	return e, err
}

// IsEnrolled reports whether userID is enrolled in courseID.
func (r *CourseRepo) IsEnrolled(ctx context.Context, userID, courseID uint64) (bool, error) {
	_, err := r.enrollment(ctx, r.db, userID, courseID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
