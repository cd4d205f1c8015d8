package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/student-registry/internal/domain/model"
)

// StudentRepository — учётные записи студентов и их роли.
type StudentRepository interface {
	// Create вставляет студента с хешем пароля. ErrConflict при дубликате
	// student_id или email (без учёта регистра).
	Create(ctx context.Context, s *model.Student, passwordHash string) error
	// Delete удаляет учётную запись вместе с ролями.
	Delete(ctx context.Context, id string) error
	// FindByEmail ищет студента по email без учёта регистра. ErrNotFound, если нет.
	FindByEmail(ctx context.Context, email string) (*model.Student, error)
	// GetByStudentID возвращает студента по человекочитаемому ID.
	GetByStudentID(ctx context.Context, studentID string) (*model.Student, error)
	// ExistsStudentID сообщает, занят ли student_id.
	ExistsStudentID(ctx context.Context, studentID string) (bool, error)
	// AssignRole назначает роль; запись роли создаётся при необходимости.
	AssignRole(ctx context.Context, id, role string) error
	// UpdateMedia записывает пути медиафайлов; nil оставляет поле без изменений.
	UpdateMedia(ctx context.Context, id string, imagePath, videoPath *string) error
	// List возвращает страницу студентов и общее количество по фильтрам.
	List(ctx context.Context, filters StudentListFilters, limit, offset int) ([]*model.Student, int, error)
}

// StudentListFilters — фильтры списка: подстрока имени и email без учёта регистра.
type StudentListFilters struct {
	Name  string
	Email string
}

const studentColumns = `id, student_id, email, full_name, date_of_birth, age, height_cm, gender,
	mobile_number, profile_image_path, profile_video_path, created_at, updated_at`

type studentRepo struct {
	db DBTX
}

// NewStudentRepository создаёт репозиторий студентов.
func NewStudentRepository(db DBTX) StudentRepository {
	return &studentRepo{db: db}
}

func scanStudent(row pgx.Row) (*model.Student, error) {
	s := &model.Student{}
	var gender string
	err := row.Scan(
		&s.ID, &s.StudentID, &s.Email, &s.FullName, &s.DateOfBirth, &s.Age, &s.HeightCm, &gender,
		&s.MobileNumber, &s.ProfileImagePath, &s.ProfileVideoPath, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Gender = model.Gender(gender)
	return s, nil
}

func (r *studentRepo) Create(ctx context.Context, s *model.Student, passwordHash string) error {
	query := `
		INSERT INTO students (id, student_id, email, full_name, date_of_birth, age, height_cm,
			gender, mobile_number, password_hash, profile_image_path, profile_video_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.StudentID, s.Email, s.FullName, s.DateOfBirth, s.Age, s.HeightCm,
		string(s.Gender), s.MobileNumber, passwordHash, s.ProfileImagePath, s.ProfileVideoPath,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: студент с таким ID или email уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания студента: %w", err)
	}
	return nil
}

func (r *studentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ошибка удаления студента: %w", err)
	}
	return nil
}

func (r *studentRepo) FindByEmail(ctx context.Context, email string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE LOWER(email) = LOWER($1)`
	s, err := scanStudent(r.db.QueryRow(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска студента по email: %w", err)
	}
	return s, nil
}

func (r *studentRepo) GetByStudentID(ctx context.Context, studentID string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE student_id = $1`
	s, err := scanStudent(r.db.QueryRow(ctx, query, studentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения студента: %w", err)
	}
	return s, nil
}

func (r *studentRepo) ExistsStudentID(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE student_id = $1)`, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки student_id: %w", err)
	}
	return exists, nil
}

func (r *studentRepo) AssignRole(ctx context.Context, id, role string) error {
	return inTx(ctx, r.db, func(db DBTX) error {
		if _, err := db.Exec(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT DO NOTHING`, role,
		); err != nil {
			return fmt.Errorf("ошибка создания роли %s: %w", role, err)
		}
		if _, err := db.Exec(ctx,
			`INSERT INTO student_roles (student_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, role,
		); err != nil {
			return fmt.Errorf("ошибка назначения роли %s: %w", role, err)
		}
		return nil
	})
}

func (r *studentRepo) UpdateMedia(ctx context.Context, id string, imagePath, videoPath *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE students
		SET profile_image_path = COALESCE($2, profile_image_path),
			profile_video_path = COALESCE($3, profile_video_path),
			updated_at = NOW()
		WHERE id = $1`,
		id, imagePath, videoPath,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления медиафайлов: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildStudentWhere строит WHERE-условие и аргументы фильтров списка.
func buildStudentWhere(filters StudentListFilters) (string, []any) {
	var conditions []string
	var args []any

	if name := strings.TrimSpace(filters.Name); name != "" {
		args = append(args, "%"+escapeLike(name)+"%")
		conditions = append(conditions, fmt.Sprintf("full_name ILIKE $%d", len(args)))
	}
	if email := strings.TrimSpace(filters.Email); email != "" {
		args = append(args, "%"+escapeLike(email)+"%")
		conditions = append(conditions, fmt.Sprintf("email ILIKE $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike экранирует спецсимволы LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *studentRepo) List(ctx context.Context, filters StudentListFilters, limit, offset int) ([]*model.Student, int, error) {
	where, args := buildStudentWhere(filters)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM students `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта студентов: %w", err)
	}

	argNum := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s
		FROM students
		%s
		ORDER BY created_at DESC, student_id
		LIMIT $%d OFFSET $%d`, studentColumns, where, argNum, argNum+1)

	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка студентов: %w", err)
	}
	defer rows.Close()

	var students []*model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка чтения студента: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации студентов: %w", err)
	}
	return students, total, nil
}
