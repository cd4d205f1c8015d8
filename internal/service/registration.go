// registration.go — отправка формы регистрации.
//
// Этапы: проверка → создание учётной записи → перенос медиафайлов черновика
// → письмо с учётными данными. Ошибка на любом этапе до письма прерывает
// регистрацию; ошибка отправки письма только меняет сообщение пользователю.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/student-registry/internal/domain/model"
	"github.com/bigkaa/student-registry/internal/repository"
	"github.com/bigkaa/student-registry/internal/storage/mediastore"
)

// CredentialsSubject — тема письма с учётными данными.
const CredentialsSubject = "Your Student Portal Credentials"

var credentialsTemplate = template.Must(template.New("credentials").Parse(
	`<p>Hello {{.FullName}},</p>
<p>Your student account has been created successfully.</p>
<p><strong>Student ID:</strong> {{.StudentID}}</p>
<p><strong>Login Email:</strong> {{.Email}}</p>
<p><strong>Temporary Password:</strong> {{.Password}}</p>
<p>Please log in and update your profile as needed.</p>
`))

// Mailer отправляет HTML-письмо.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// MediaPromoter переносит медиафайлы черновика в каталог студента.
type MediaPromoter interface {
	Promote(ctx context.Context, draft *model.Draft, studentID string) (*mediastore.PromoteResult, error)
}

// CacheInvalidator сбрасывает закэшированные списки студентов.
type CacheInvalidator interface {
	Invalidate()
}

// RegistrationRequest — итоговые поля формы регистрации.
type RegistrationRequest struct {
	DraftID      string  `json:"draftId" validate:"required,uuid"`
	FullName     string  `json:"fullName" validate:"required,max=150"`
	DateOfBirth  string  `json:"dateOfBirth" validate:"required"`
	HeightCm     float64 `json:"heightCm" validate:"gte=0,lte=300"`
	Gender       string  `json:"gender" validate:"required"`
	MobileNumber string  `json:"mobileNumber" validate:"omitempty,max=20"`
	Email        string  `json:"email" validate:"required,email,max=256"`
}

// RegistrationResult — результат регистрации.
type RegistrationResult struct {
	Success      bool     `json:"success"`
	EmailSent    bool     `json:"emailSent"`
	StudentID    string   `json:"studentId,omitempty"`
	Email        string   `json:"email,omitempty"`
	TempPassword string   `json:"tempPassword,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// Message — текст для пользователя: письмо отправлено либо учётные данные
// показываются сразу.
func (r *RegistrationResult) Message() string {
	if !r.Success {
		return strings.Join(r.Errors, "; ")
	}
	if r.EmailSent {
		return "Регистрация завершена. Учётные данные отправлены на email."
	}
	return fmt.Sprintf("Регистрация завершена! Сохраните учётные данные:\n\n"+
		"Student ID: %s\nEmail: %s\nПароль: %s\n\n"+
		"(Письмо не отправлено. Сохраните данные сейчас!)",
		r.StudentID, r.Email, r.TempPassword)
}

func failed(errs ...string) *RegistrationResult {
	return &RegistrationResult{Success: false, Errors: errs}
}

// RegistrationService выполняет регистрацию студента из черновика.
type RegistrationService struct {
	drafts         repository.DraftRepository
	students       repository.StudentRepository
	ids            *StudentIDGenerator
	promoter       MediaPromoter
	cache          CacheInvalidator
	mailer         Mailer
	passwordLength int
	validate       *validator.Validate
	logger         *slog.Logger

	now          func() time.Time
	hashPassword func(password string) (string, error)
}

// NewRegistrationService создаёт сервис регистрации.
// mailer может быть nil — письма не отправляются.
func NewRegistrationService(
	drafts repository.DraftRepository,
	students repository.StudentRepository,
	promoter MediaPromoter,
	cache CacheInvalidator,
	mailer Mailer,
	passwordLength int,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		drafts:         drafts,
		students:       students,
		ids:            NewStudentIDGenerator(students),
		promoter:       promoter,
		cache:          cache,
		mailer:         mailer,
		passwordLength: passwordLength,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger.With(slog.String("component", "registration")),
		now:            time.Now,
		hashPassword:   bcryptHash,
	}
}

func bcryptHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Register регистрирует студента.
//
// Ошибки проверки (поля формы, занятый email) возвращаются в результате
// с Success = false. ErrNotFound — черновика нет. Прочие ошибки — сбой
// инфраструктуры; учётная запись в этом случае не остаётся.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	log := s.logger.With(slog.String("draft_id", req.DraftID))

	// --- Проверка ---

	fields, errs := s.validateRequest(req)
	if len(errs) > 0 {
		log.Debug("Форма регистрации не прошла проверку", slog.Int("errors", len(errs)))
		return failed(errs...), nil
	}

	draft, err := s.drafts.GetByID(ctx, req.DraftID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: черновик регистрации не найден", ErrNotFound)
		}
		return nil, fmt.Errorf("получение черновика: %w", err)
	}

	if _, err := s.students.FindByEmail(ctx, fields.Email); err == nil {
		return failed(ErrEmailTaken.Error()), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("проверка email: %w", err)
	}

	// --- Создание учётной записи ---

	studentID, err := s.ids.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("генерация student ID: %w", err)
	}
	password, err := GeneratePassword(s.passwordLength)
	if err != nil {
		return nil, fmt.Errorf("генерация пароля: %w", err)
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	student := &model.Student{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		Email:        fields.Email,
		FullName:     fields.FullName,
		DateOfBirth:  fields.DateOfBirth,
		Age:          model.AgeAt(fields.DateOfBirth, s.now().UTC()),
		HeightCm:     req.HeightCm,
		Gender:       fields.Gender,
		MobileNumber: fields.MobileNumber,
	}

	if err := s.students.Create(ctx, student, hash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return failed(ErrEmailTaken.Error()), nil
		}
		return nil, fmt.Errorf("создание учётной записи: %w", err)
	}
	log = log.With(slog.String("student_id", studentID))

	if err := s.students.AssignRole(ctx, student.ID, model.RoleStudent); err != nil {
		s.rollbackAccount(student, log)
		return nil, fmt.Errorf("назначение роли: %w", err)
	}

	// --- Перенос медиафайлов ---

	promoted, err := s.promoter.Promote(ctx, draft, studentID)
	if err != nil {
		s.rollbackAccount(student, log)
		return nil, fmt.Errorf("перенос медиафайлов: %w", err)
	}
	if promoted.ImagePath != nil || promoted.VideoPath != nil {
		if err := s.students.UpdateMedia(ctx, student.ID, promoted.ImagePath, promoted.VideoPath); err != nil {
			// Файлы уже в каталоге студента; путь можно восстановить повторной загрузкой
			log.Error("Ошибка записи путей медиафайлов", slog.String("error", err.Error()))
		}
	}

	if err := s.drafts.Delete(ctx, draft.ID); err != nil {
		log.Warn("Ошибка удаления черновика, он будет удалён очисткой",
			slog.String("error", err.Error()),
		)
	}

	s.cache.Invalidate()

	// --- Письмо ---

	result := &RegistrationResult{
		Success:      true,
		StudentID:    studentID,
		Email:        student.Email,
		TempPassword: password,
	}
	result.EmailSent = s.sendCredentials(ctx, student, password, log)

	log.Info("Студент зарегистрирован",
		slog.Bool("email_sent", result.EmailSent),
		slog.Bool("has_image", promoted.ImagePath != nil),
		slog.Bool("has_video", promoted.VideoPath != nil),
	)
	return result, nil
}

// registrationFields — нормализованные поля формы.
type registrationFields struct {
	FullName     string
	DateOfBirth  time.Time
	Gender       model.Gender
	MobileNumber *string
	Email        string
}

// validateRequest проверяет форму и возвращает список понятных ошибок.
func (s *RegistrationService) validateRequest(req RegistrationRequest) (*registrationFields, []string) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)

	var errs []string
	if err := s.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, []string{"Некорректные данные формы"}
		}
		for _, fe := range ve {
			errs = append(errs, fieldErrorMessage(fe))
		}
	}

	fields := &registrationFields{FullName: req.FullName, Email: req.Email}
	if req.MobileNumber != "" {
		m := req.MobileNumber
		fields.MobileNumber = &m
	}

	if req.DateOfBirth != "" {
		dob, ok := parseDate(req.DateOfBirth)
		switch {
		case !ok:
			errs = append(errs, "Дата рождения должна быть в формате ГГГГ-ММ-ДД")
		case dob.After(truncateToDate(s.now().UTC())):
			errs = append(errs, "Дата рождения не может быть в будущем")
		default:
			fields.DateOfBirth = dob
		}
	}

	if req.Gender != "" {
		g, ok := model.ParseGender(req.Gender)
		if !ok || g == model.GenderUnknown {
			errs = append(errs, "Укажите пол: male, female или other")
		} else {
			fields.Gender = g
		}
	}

	return fields, errs
}

var fieldLabels = map[string]string{
	"DraftID":      "Черновик",
	"FullName":     "Полное имя",
	"DateOfBirth":  "Дата рождения",
	"HeightCm":     "Рост",
	"Gender":       "Пол",
	"MobileNumber": "Мобильный номер",
	"Email":        "Email",
}

// fieldErrorMessage переводит ошибку validator в сообщение для пользователя.
func fieldErrorMessage(fe validator.FieldError) string {
	label := fieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + ": обязательное поле"
	case "max":
		return fmt.Sprintf("%s: не больше %s символов", label, fe.Param())
	case "gte", "lte":
		return label + ": значение должно быть от 0 до 300"
	case "email":
		return label + " имеет некорректный формат"
	case "uuid":
		return label + ": некорректный идентификатор"
	}
	return label + ": некорректное значение"
}

// rollbackAccount удаляет созданную учётную запись после сбоя следующего этапа.
func (s *RegistrationService) rollbackAccount(student *model.Student, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.students.Delete(ctx, student.ID); err != nil {
		log.Error("Ошибка отката учётной записи", slog.String("error", err.Error()))
	}
}

// sendCredentials отправляет письмо; false — письмо не отправлено.
func (s *RegistrationService) sendCredentials(ctx context.Context, student *model.Student, password string, log *slog.Logger) bool {
	if s.mailer == nil {
		return false
	}

	var body bytes.Buffer
	err := credentialsTemplate.Execute(&body, map[string]string{
		"FullName":  student.FullName,
		"StudentID": student.StudentID,
		"Email":     student.Email,
		"Password":  password,
	})
	if err != nil {
		log.Error("Ошибка формирования письма", slog.String("error", err.Error()))
		return false
	}

	if err := s.mailer.Send(ctx, student.Email, CredentialsSubject, body.String()); err != nil {
		log.Warn("Письмо с учётными данными не отправлено", slog.String("error", err.Error()))
		return false
	}
	return true
}
