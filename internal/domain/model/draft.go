// Пакет model — доменные модели Student Registry.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Gender — пол студента.
type Gender string

const (
	// GenderUnknown — значение не указано
	GenderUnknown Gender = "unknown"
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
)

// genderByNumber — числовые коды, принимаемые наравне с именами.
var genderByNumber = map[int]Gender{
	0: GenderUnknown,
	1: GenderMale,
	2: GenderFemale,
	3: GenderOther,
}

// ParseGender разбирает пол по имени (без учёта регистра) или числовому коду.
// Второе значение false, если значение не распознано.
func ParseGender(raw string) (Gender, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(s); err == nil {
		g, ok := genderByNumber[n]
		return g, ok
	}
	switch Gender(s) {
	case GenderUnknown, GenderMale, GenderFemale, GenderOther:
		return Gender(s), true
	}
	return "", false
}

// DraftField — имя поля черновика, изменяемого по одному.
type DraftField string

const (
	FieldFullName         DraftField = "fullname"
	FieldDateOfBirth      DraftField = "dateofbirth"
	FieldHeightCm         DraftField = "heightcm"
	FieldGender           DraftField = "gender"
	FieldMobileNumber     DraftField = "mobilenumber"
	FieldEmail            DraftField = "email"
	FieldProfileImagePath DraftField = "profileimagepath"
	FieldProfileVideoPath DraftField = "profilevideopath"
)

// ParseDraftField нормализует имя поля (без учёта регистра).
func ParseDraftField(name string) (DraftField, bool) {
	f := DraftField(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case FieldFullName, FieldDateOfBirth, FieldHeightCm, FieldGender,
		FieldMobileNumber, FieldEmail, FieldProfileImagePath, FieldProfileVideoPath:
		return f, true
	}
	return "", false
}

// IsMediaPath сообщает, что поле хранит путь к загруженному файлу.
// Такие поля заполняет только загрузка файла.
func (f DraftField) IsMediaPath() bool {
	return f == FieldProfileImagePath || f == FieldProfileVideoPath
}

// Ограничения длины полей (совпадают с размерами колонок).
const (
	MaxFullNameLen     = 150
	MaxMobileNumberLen = 20
	MaxEmailLen        = 256
	MaxMediaPathLen    = 500
	MaxHeightCm        = 300
)

// Draft — черновик регистрации: заполняется по одному полю,
// живёт до отправки формы, отказа или истечения срока.
// Все поля анкеты необязательны до отправки.
type Draft struct {
	ID               string     `json:"draftId"`
	FullName         *string    `json:"fullName,omitempty"`
	DateOfBirth      *time.Time `json:"dateOfBirth,omitempty"`
	HeightCm         *float64   `json:"heightCm,omitempty"`
	Gender           *Gender    `json:"gender,omitempty"`
	MobileNumber     *string    `json:"mobileNumber,omitempty"`
	Email            *string    `json:"email,omitempty"`
	ProfileImagePath *string    `json:"profileImagePath,omitempty"`
	ProfileVideoPath *string    `json:"profileVideoPath,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastUpdatedAt    time.Time  `json:"lastUpdatedAt"`
}

// IsExpired сообщает, истёк ли черновик к моменту now.
func (d *Draft) IsExpired(now time.Time, expiry time.Duration) bool {
	return d.LastUpdatedAt.Before(now.Add(-expiry))
}
