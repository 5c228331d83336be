package questionnaire

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preop/intake/internal/platform/db"
)

type answerRepoPG struct {
	pool *pgxpool.Pool
	tx   db.Transactor
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &answerRepoPG{pool: pool, tx: db.NewTransactor(pool)}
}

func (r *answerRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const answerCols = `id, patient_id, step, question, answer, created_at`

func (r *answerRepoPG) ReplaceStep(ctx context.Context, patientID uuid.UUID, step int, answers []Answer) error {
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		var locked uuid.UUID
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT id FROM preop_patients WHERE id = $1 FOR UPDATE`, patientID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := r.conn(ctx).Exec(ctx,
			`DELETE FROM preop_assessments WHERE patient_id = $1 AND step = $2`, patientID, step); err != nil {
			return err
		}
		for _, a := range answers {
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO preop_assessments (patient_id, step, question, answer)
				VALUES ($1, $2, $3, $4)`,
				patientID, step, a.Question, a.Answer,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *answerRepoPG) ListStep(ctx context.Context, patientID uuid.UUID, step int) (map[string]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT question, answer FROM preop_assessments WHERE patient_id = $1 AND step = $2 ORDER BY id`,
		patientID, step)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	saved := make(map[string]string)
	for rows.Next() {
		var q, a string
		if err := rows.Scan(&q, &a); err != nil {
			return nil, err
		}
		saved[q] = a
	}
	return saved, rows.Err()
}

func (r *answerRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Answer, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+answerCols+` FROM preop_assessments WHERE patient_id = $1 ORDER BY step, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

func (r *answerRepoPG) GroupedByStep(ctx context.Context, patientID uuid.UUID) (map[int]map[string]string, error) {
	answers, err := r.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return groupByStep(answers), nil
}

func scanAnswer(row pgx.Row) (*Answer, error) {
	var a Answer
	if err := row.Scan(&a.ID, &a.PatientID, &a.Step, &a.Question, &a.Answer, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
