package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"mathtutor/internal/common/db"
	"mathtutor/internal/user/repository"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*repository.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*repository.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, _ db.Transaction, user *repository.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return 0, repository.ErrUsernameExists
		}
	}
	f.nextID++
	user.ID = f.nextID
	if user.Role == "" {
		user.Role = repository.UserRoleUser
	}
	stored := *user
	f.users[user.ID] = &stored
	return user.ID, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, _ db.Transaction, id int64) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, _ db.Transaction, username string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) List(_ context.Context, _ db.Transaction, limit, offset int) ([]*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.User, 0, len(f.users))
	for _, u := range f.users {
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []*repository.User{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, _ db.Transaction, id int64, username string, rating float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	for _, other := range f.users {
		if other.ID != id && other.Username == username {
			return repository.ErrUsernameExists
		}
	}
	u.Username = username
	u.Rating = rating
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, _ db.Transaction, id int64, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (f *fakeUserRepo) UpdateProfileImage(_ context.Context, _ db.Transaction, id int64, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ProfileImage = path
	return nil
}

func (f *fakeUserRepo) AdjustRating(_ context.Context, _ db.Transaction, id int64, delta float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.Rating += delta
	return u.Rating, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, _ db.Transaction, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) hashOf(username string) string {
	u, _ := f.GetByUsername(context.Background(), nil, username)
	if u == nil {
		return ""
	}
	return u.PasswordHash
}

type fakeHistoryRepo struct {
	mu     sync.Mutex
	points []*repository.RatingPoint
}

func (f *fakeHistoryRepo) Append(_ context.Context, _ db.Transaction, point *repository.RatingPoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if point.RecordedAt.IsZero() {
		point.RecordedAt = time.Now()
	}
	point.ID = int64(len(f.points) + 1)
	copied := *point
	f.points = append(f.points, &copied)
	return point.ID, nil
}

func (f *fakeHistoryRepo) ListByUser(_ context.Context, _ db.Transaction, userID int64, limit int) ([]*repository.RatingPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.RatingPoint, 0)
	for _, p := range f.points {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
