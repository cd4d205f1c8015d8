package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	studentIDPrefix   = "STU"
	studentIDAttempts = 5
	// studentIDFallbackLen — длина запасного ID (с уникальным суффиксом)
	studentIDFallbackLen = 25
)

// StudentIDChecker проверяет занятость student_id.
type StudentIDChecker interface {
	ExistsStudentID(ctx context.Context, studentID string) (bool, error)
}

// StudentIDGenerator выдаёт человекочитаемые ID вида
// STU<yyyyMMddHHmmss UTC><три цифры 100-998>.
type StudentIDGenerator struct {
	checker StudentIDChecker
	now     func() time.Time
}

// NewStudentIDGenerator создаёт генератор.
func NewStudentIDGenerator(checker StudentIDChecker) *StudentIDGenerator {
	return &StudentIDGenerator{checker: checker, now: time.Now}
}

// Generate подбирает свободный ID: до пяти попыток со случайным
// суффиксом, затем ID с суффиксом из UUID, обрезанный до 25 символов.
func (g *StudentIDGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < studentIDAttempts; attempt++ {
		suffix, err := rand.Int(rand.Reader, big.NewInt(899))
		if err != nil {
			return "", fmt.Errorf("генерация суффикса: %w", err)
		}
		candidate := fmt.Sprintf("%s%s%d", studentIDPrefix, g.timestamp(), 100+suffix.Int64())

		exists, err := g.checker.ExistsStudentID(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}

	fallback := studentIDPrefix + g.timestamp() + strings.ReplaceAll(uuid.NewString(), "-", "")
	return fallback[:studentIDFallbackLen], nil
}

func (g *StudentIDGenerator) timestamp() string {
	return g.now().UTC().Format("20060102150405")
}
