package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preop/intake/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, name, registration_id, phone, gender, age, doctor_name, surgery_name, surgery_date,
	token, submitted, completed_at, sms_sent, sms_sent_at, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO preop_patients (
			id, name, registration_id, phone, gender, age, doctor_name, surgery_name, surgery_date, token
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.RegistrationID, p.Phone, p.Gender, p.Age, p.DoctorName, p.SurgeryName, p.SurgeryDate, p.Token,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return notFound(scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM preop_patients WHERE id = $1`, id)))
}

func (r *patientRepoPG) GetByToken(ctx context.Context, token string) (*Patient, error) {
	return notFound(scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM preop_patients WHERE token = $1`, token)))
}

// Update writes identity fields only; token and status columns are left alone.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE preop_patients SET
			name=$2, registration_id=$3, phone=$4, gender=$5, age=$6,
			doctor_name=$7, surgery_name=$8, surgery_date=$9, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.RegistrationID, p.Phone, p.Gender, p.Age, p.DoctorName, p.SurgeryName, p.SurgeryDate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM preop_patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var searchColumns = []string{"name", "registration_id", "phone", "doctor_name", "surgery_name", "surgery_date"}

func filterClause(f Filter) (string, []interface{}) {
	if q := strings.TrimSpace(f.Query); q != "" {
		conds := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			conds[i] = col + ` ILIKE $1 ESCAPE '\'`
		}
		return " WHERE " + strings.Join(conds, " OR "), []interface{}{"%" + escapeLike(q) + "%"}
	}
	if d := strings.TrimSpace(f.Date); d != "" {
		return " WHERE surgery_date = $1", []interface{}{d}
	}
	return "", nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *patientRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM preop_patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM preop_patients%s ORDER BY surgery_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		patientCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (r *patientRepoPG) ExistsNaturalKey(ctx context.Context, registrationID, surgeryDate string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM preop_patients WHERE registration_id = $1 AND surgery_date = $2)`,
		registrationID, surgeryDate,
	).Scan(&exists)
	return exists, err
}

func (r *patientRepoPG) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (time.Time, error) {
	var completedAt time.Time
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE preop_patients
		SET submitted = TRUE, completed_at = COALESCE(completed_at, $2), updated_at = NOW()
		WHERE id = $1
		RETURNING completed_at`, id, at,
	).Scan(&completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return completedAt, err
}

func (r *patientRepoPG) MarkSMSSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE preop_patients SET sms_sent = TRUE, sms_sent_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Name, &p.RegistrationID, &p.Phone, &p.Gender, &p.Age, &p.DoctorName, &p.SurgeryName, &p.SurgeryDate,
		&p.Token, &p.Submitted, &p.CompletedAt, &p.SMSSent, &p.SMSSentAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func notFound(p *Patient, err error) (*Patient, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}
