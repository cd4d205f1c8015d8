package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/student-registry/internal/domain/model"
	"github.com/bigkaa/student-registry/internal/repository"
)

// memDraftRepo — DraftRepository в памяти.
type memDraftRepo struct {
	mu     sync.Mutex
	drafts map[string]*model.Draft
	err    error
}

func newMemDraftRepo() *memDraftRepo {
	return &memDraftRepo{drafts: make(map[string]*model.Draft)}
}

func (r *memDraftRepo) Create(_ context.Context, d *model.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cp := *d
	r.drafts[d.ID] = &cp
	return nil
}

func (r *memDraftRepo) GetByID(_ context.Context, id string) (*model.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	d, ok := r.drafts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDraftRepo) SetField(_ context.Context, id string, field model.DraftField, value any, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	d, ok := r.drafts[id]
	if !ok {
		return repository.ErrNotFound
	}

	str := func() *string {
		if value == nil {
			return nil
		}
		s := value.(string)
		return &s
	}

	switch field {
	case model.FieldFullName:
		d.FullName = str()
	case model.FieldDateOfBirth:
		if value == nil {
			d.DateOfBirth = nil
		} else {
			t := value.(time.Time)
			d.DateOfBirth = &t
		}
	case model.FieldHeightCm:
		h := value.(float64)
		d.HeightCm = &h
	case model.FieldGender:
		g := model.Gender(value.(string))
		d.Gender = &g
	case model.FieldMobileNumber:
		d.MobileNumber = str()
	case model.FieldEmail:
		d.Email = str()
	case model.FieldProfileImagePath:
		d.ProfileImagePath = str()
	case model.FieldProfileVideoPath:
		d.ProfileVideoPath = str()
	default:
		return errors.New("неизвестное поле")
	}
	if at.After(d.LastUpdatedAt) {
		d.LastUpdatedAt = at
	}
	return nil
}

func (r *memDraftRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.drafts, id)
	return nil
}

func (r *memDraftRepo) ListExpired(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var ids []string
	for id, d := range r.drafts {
		if d.LastUpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memDraftRepo) DeleteExpired(_ context.Context, ids []string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, id := range ids {
		if d, ok := r.drafts[id]; ok && d.LastUpdatedAt.Before(cutoff) {
			delete(r.drafts, id)
			n++
		}
	}
	return n, nil
}

func (r *memDraftRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

// memStudentRepo — StudentRepository в памяти.
type memStudentRepo struct {
	mu       sync.Mutex
	students map[string]*model.Student // по внутреннему ID
	hashes   map[string]string
	roles    map[string][]string

	// allTaken — любой student_id считается занятым
	allTaken bool

	assignErr error
	mediaErr  error
	listCalls int
}

func newMemStudentRepo() *memStudentRepo {
	return &memStudentRepo{
		students: make(map[string]*model.Student),
		hashes:   make(map[string]string),
		roles:    make(map[string][]string),
	}
}

func (r *memStudentRepo) Create(_ context.Context, s *model.Student, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.students {
		if strings.EqualFold(existing.Email, s.Email) || existing.StudentID == s.StudentID {
			return repository.ErrConflict
		}
	}
	cp := *s
	r.students[s.ID] = &cp
	r.hashes[s.ID] = passwordHash
	return nil
}

func (r *memStudentRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.students, id)
	delete(r.hashes, id)
	delete(r.roles, id)
	return nil
}

func (r *memStudentRepo) FindByEmail(_ context.Context, email string) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if strings.EqualFold(s.Email, email) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memStudentRepo) GetByStudentID(_ context.Context, studentID string) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.StudentID == studentID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memStudentRepo) ExistsStudentID(_ context.Context, studentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allTaken {
		return true, nil
	}
	for _, s := range r.students {
		if s.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memStudentRepo) AssignRole(_ context.Context, id, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assignErr != nil {
		return r.assignErr
	}
	if _, ok := r.students[id]; !ok {
		return repository.ErrNotFound
	}
	r.roles[id] = append(r.roles[id], role)
	return nil
}

func (r *memStudentRepo) UpdateMedia(_ context.Context, id string, imagePath, videoPath *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mediaErr != nil {
		return r.mediaErr
	}
	s, ok := r.students[id]
	if !ok {
		return repository.ErrNotFound
	}
	if imagePath != nil {
		v := *imagePath
		s.ProfileImagePath = &v
	}
	if videoPath != nil {
		v := *videoPath
		s.ProfileVideoPath = &v
	}
	return nil
}

func (r *memStudentRepo) List(_ context.Context, f repository.StudentListFilters, limit, offset int) ([]*model.Student, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++

	var all []*model.Student
	for _, s := range r.students {
		if f.Name != "" && !strings.Contains(strings.ToLower(s.FullName), strings.ToLower(f.Name)) {
			continue
		}
		if f.Email != "" && !strings.Contains(strings.ToLower(s.Email), strings.ToLower(f.Email)) {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StudentID < all[j].StudentID })

	total := len(all)
	if offset >= total {
		return []*model.Student{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memStudentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.students)
}

// recordingFiles фиксирует удаления файлов черновиков.
type recordingFiles struct {
	mu      sync.Mutex
	deleted []string
}

func (f *recordingFiles) DeleteDraftFiles(draftID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, draftID)
}

func (f *recordingFiles) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
