package model

import "time"

// RoleStudent — роль, назначаемая при самостоятельной регистрации.
const RoleStudent = "Student"

// Student — постоянная учётная запись студента.
type Student struct {
	// ID — внутренний UUID записи
	ID string `json:"id"`
	// StudentID — человекочитаемый идентификатор (STU...)
	StudentID        string    `json:"studentId"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	DateOfBirth      time.Time `json:"dateOfBirth"`
	Age              int       `json:"age"`
	HeightCm         float64   `json:"heightCm"`
	Gender           Gender    `json:"gender"`
	MobileNumber     *string   `json:"mobileNumber,omitempty"`
	ProfileImagePath *string   `json:"profileImagePath,omitempty"`
	ProfileVideoPath *string   `json:"profileVideoPath,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AgeAt вычисляет полных лет на дату today.
func AgeAt(dateOfBirth, today time.Time) int {
	age := today.Year() - dateOfBirth.Year()
	if today.Month() < dateOfBirth.Month() ||
		(today.Month() == dateOfBirth.Month() && today.Day() < dateOfBirth.Day()) {
		age--
	}
	return age
}
