package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// AttemptReceiptRepository handles the local record of scored attempts.
type AttemptReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptReceiptRepository creates a new AttemptReceiptRepository.
func NewAttemptReceiptRepository(pool *pgxpool.Pool) *AttemptReceiptRepository {
	return &AttemptReceiptRepository{pool: pool}
}

const receiptColumns = `attempt_id, student_id, exam_code, mock_test_code, auto_submitted,
	total_marks, correct_count, wrong_count, attempted_count, skipped_count,
	started_at, ended_at, time_taken_seconds`

// InsertBatch stores receipts in one round trip. Receipts already stored are ignored.
func (r *AttemptReceiptRepository) InsertBatch(ctx context.Context, batch []model.AttemptReceipt) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	attemptIDs := make([]string, n)
	studentIDs := make([]int, n)
	examCodes := make([]string, n)
	mockCodes := make([]string, n)
	autos := make([]bool, n)
	marks := make([]float64, n)
	corrects := make([]int, n)
	wrongs := make([]int, n)
	attempted := make([]int, n)
	skipped := make([]int, n)
	startedAts := make([]time.Time, n)
	endedAts := make([]time.Time, n)
	taken := make([]int, n)

	for i, rc := range batch {
		attemptIDs[i] = rc.AttemptID
		studentIDs[i] = rc.StudentID
		examCodes[i] = rc.ExamCode
		mockCodes[i] = rc.MockTestCode
		autos[i] = rc.AutoSubmitted
		marks[i] = rc.TotalMarks
		corrects[i] = rc.CorrectCount
		wrongs[i] = rc.WrongCount
		attempted[i] = rc.AttemptedCount
		skipped[i] = rc.SkippedCount
		startedAts[i] = rc.StartedAt
		endedAts[i] = rc.EndedAt
		taken[i] = rc.TimeTakenSeconds
	}

	query := `
		INSERT INTO attempt_receipts (` + receiptColumns + `)
		SELECT * FROM UNNEST(
			$1::text[],
			$2::int[],
			$3::text[],
			$4::text[],
			$5::bool[],
			$6::float8[],
			$7::int[],
			$8::int[],
			$9::int[],
			$10::int[],
			$11::timestamptz[],
			$12::timestamptz[],
			$13::int[]
		)
		ON CONFLICT (attempt_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		attemptIDs, studentIDs, examCodes, mockCodes, autos, marks,
		corrects, wrongs, attempted, skipped, startedAts, endedAts, taken,
	)
	return err
}

// Insert stores a single receipt.
func (r *AttemptReceiptRepository) Insert(ctx context.Context, rc model.AttemptReceipt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_receipts (`+receiptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		rc.AttemptID, rc.StudentID, rc.ExamCode, rc.MockTestCode, rc.AutoSubmitted, rc.TotalMarks,
		rc.CorrectCount, rc.WrongCount, rc.AttemptedCount, rc.SkippedCount,
		rc.StartedAt, rc.EndedAt, rc.TimeTakenSeconds,
	)
	return err
}

// ListByStudent returns a student's receipts, newest first.
func (r *AttemptReceiptRepository) ListByStudent(ctx context.Context, studentID, limit int) ([]model.AttemptReceipt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+receiptColumns+`
		 FROM attempt_receipts
		 WHERE student_id = $1
		 ORDER BY ended_at DESC
		 LIMIT $2`, studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := []model.AttemptReceipt{}
	for rows.Next() {
		var rc model.AttemptReceipt
		if err := rows.Scan(
			&rc.AttemptID, &rc.StudentID, &rc.ExamCode, &rc.MockTestCode, &rc.AutoSubmitted,
			&rc.TotalMarks, &rc.CorrectCount, &rc.WrongCount, &rc.AttemptedCount, &rc.SkippedCount,
			&rc.StartedAt, &rc.EndedAt, &rc.TimeTakenSeconds,
		); err != nil {
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}

// GetForStudent returns one receipt if it belongs to the student. It returns
// pgx.ErrNoRows otherwise.
func (r *AttemptReceiptRepository) GetForStudent(ctx context.Context, studentID int, attemptID string) (*model.AttemptReceipt, error) {
	rc := &model.AttemptReceipt{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+receiptColumns+`
		 FROM attempt_receipts
		 WHERE attempt_id = $1 AND student_id = $2`, attemptID, studentID,
	).Scan(
		&rc.AttemptID, &rc.StudentID, &rc.ExamCode, &rc.MockTestCode, &rc.AutoSubmitted,
		&rc.TotalMarks, &rc.CorrectCount, &rc.WrongCount, &rc.AttemptedCount, &rc.SkippedCount,
		&rc.StartedAt, &rc.EndedAt, &rc.TimeTakenSeconds,
	)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
