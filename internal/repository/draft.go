package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/student-registry/internal/domain/model"
)

// DraftRepository — CRUD таблицы registration_drafts.
type DraftRepository interface {
	// Create вставляет пустой черновик с временными метками.
	Create(ctx context.Context, d *model.Draft) error
	// GetByID возвращает черновик или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Draft, error)
	// SetField записывает одно поле и last_updated_at одним UPDATE.
	// ErrNotFound, если черновика нет.
	SetField(ctx context.Context, id string, field model.DraftField, value any, at time.Time) error
	// Delete удаляет черновик. Отсутствие строки не ошибка.
	Delete(ctx context.Context, id string) error
	// ListExpired возвращает ID черновиков с last_updated_at < cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
	// DeleteExpired удаляет указанные черновики, если они всё ещё старше cutoff.
	DeleteExpired(ctx context.Context, ids []string, cutoff time.Time) (int, error)
}

// draftColumns — белый список колонок для SetField.
var draftColumns = map[model.DraftField]string{
	model.FieldFullName:         "full_name",
	model.FieldDateOfBirth:      "date_of_birth",
	model.FieldHeightCm:         "height_cm",
	model.FieldGender:           "gender",
	model.FieldMobileNumber:     "mobile_number",
	model.FieldEmail:            "email",
	model.FieldProfileImagePath: "profile_image_path",
	model.FieldProfileVideoPath: "profile_video_path",
}

type draftRepo struct {
	db DBTX
}

// NewDraftRepository создаёт репозиторий черновиков.
func NewDraftRepository(db DBTX) DraftRepository {
	return &draftRepo{db: db}
}

func (r *draftRepo) Create(ctx context.Context, d *model.Draft) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO registration_drafts (id, created_at, last_updated_at) VALUES ($1, $2, $3)`,
		d.ID, d.CreatedAt, d.LastUpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: черновик %s уже существует", ErrConflict, d.ID)
		}
		return fmt.Errorf("ошибка создания черновика: %w", err)
	}
	return nil
}

func (r *draftRepo) GetByID(ctx context.Context, id string) (*model.Draft, error) {
	query := `
		SELECT id, full_name, date_of_birth, height_cm, gender, mobile_number, email,
			profile_image_path, profile_video_path, created_at, last_updated_at
		FROM registration_drafts
		WHERE id = $1`

	d := &model.Draft{}
	var gender *string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.FullName, &d.DateOfBirth, &d.HeightCm, &gender, &d.MobileNumber, &d.Email,
		&d.ProfileImagePath, &d.ProfileVideoPath, &d.CreatedAt, &d.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения черновика: %w", err)
	}
	if gender != nil {
		g := model.Gender(*gender)
		d.Gender = &g
	}
	return d, nil
}

func (r *draftRepo) SetField(ctx context.Context, id string, field model.DraftField, value any, at time.Time) error {
	column, ok := draftColumns[field]
	if !ok {
		return fmt.Errorf("неизвестное поле черновика %q", field)
	}

	// GREATEST: отметка времени не откатывается назад при рассинхронизации часов
	query := fmt.Sprintf(`
		UPDATE registration_drafts
		SET %s = $2, last_updated_at = GREATEST($3, last_updated_at)
		WHERE id = $1`, column)

	tag, err := r.db.Exec(ctx, query, id, value, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления поля %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *draftRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM registration_drafts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ошибка удаления черновика: %w", err)
	}
	return nil
}

func (r *draftRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM registration_drafts WHERE last_updated_at < $1 ORDER BY last_updated_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки просроченных черновиков: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения просроченных черновиков: %w", err)
	}
	return ids, nil
}

func (r *draftRepo) DeleteExpired(ctx context.Context, ids []string, cutoff time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// Повторная проверка срока: черновик, обновлённый после выборки, остаётся
	tag, err := r.db.Exec(ctx,
		`DELETE FROM registration_drafts WHERE id = ANY($1::uuid[]) AND last_updated_at < $2`,
		ids, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления просроченных черновиков: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
