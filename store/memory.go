package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/foodtrust/foodtrust_backend/models"
)

// MemoryStore keeps every entity in process-local maps under one mutex.
// Values are copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu             sync.RWMutex
	restaurants    map[string]models.Restaurant
	auditors       map[string]models.Auditor
	certifications map[string]models.Certification
	attempts       map[string]models.IssuanceAttempt
	users          map[string]models.User
	last           time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		restaurants:    make(map[string]models.Restaurant),
		auditors:       make(map[string]models.Auditor),
		certifications: make(map[string]models.Certification),
		attempts:       make(map[string]models.IssuanceAttempt),
		users:          make(map[string]models.User),
	}
}

// stamp returns a strictly increasing timestamp; callers hold mu.
func (s *MemoryStore) stamp() time.Time {
	t := now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func cloneCertification(c models.Certification) *models.Certification {
	c.Products = append(models.StringList(nil), c.Products...)
	return &c
}

func cloneAuditor(a models.Auditor) *models.Auditor {
	a.Specializations = append(models.CertificationTypes(nil), a.Specializations...)
	if a.IsActive != nil {
		v := *a.IsActive
		a.IsActive = &v
	}
	return &a
}

func (s *MemoryStore) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restaurants[r.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range s.restaurants {
		if existing.LedgerAddress == r.LedgerAddress {
			return ErrDuplicate
		}
	}
	r.CreatedAt = s.stamp()
	s.restaurants[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]*models.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(filter.Name))
	s.mu.RLock()
	results := make([]*models.Restaurant, 0, len(s.restaurants))
	for _, r := range s.restaurants {
		if name != "" && !strings.Contains(strings.ToLower(r.Name), name) {
			continue
		}
		results = append(results, &r)
	}
	s.mu.RUnlock()
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *MemoryStore) DeleteRestaurant(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restaurants[id]; !ok {
		return ErrNotFound
	}
	for _, c := range s.certifications {
		if c.RestaurantId == id && c.Status == models.CertificationStatusPending {
			return ErrConflict
		}
	}
	for certId, c := range s.certifications {
		if c.RestaurantId == id {
			delete(s.certifications, certId)
			delete(s.attempts, certId)
		}
	}
	delete(s.restaurants, id)
	return nil
}

func (s *MemoryStore) CreateAuditor(ctx context.Context, a *models.Auditor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auditors[a.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range s.auditors {
		if strings.EqualFold(existing.Email, a.Email) || existing.LedgerAddress == a.LedgerAddress {
			return ErrDuplicate
		}
	}
	if a.IsActive == nil {
		active := true
		a.IsActive = &active
	}
	a.CreatedAt = s.stamp()
	s.auditors[a.ID] = *cloneAuditor(*a)
	return nil
}

func (s *MemoryStore) GetAuditor(ctx context.Context, id string) (*models.Auditor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auditors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAuditor(a), nil
}

func (s *MemoryStore) GetAuditorByEmail(ctx context.Context, email string) (*models.Auditor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.auditors {
		if strings.EqualFold(a.Email, email) {
			return cloneAuditor(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListAuditors(ctx context.Context, filter AuditorFilter) ([]*models.Auditor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	results := make([]*models.Auditor, 0, len(s.auditors))
	for _, a := range s.auditors {
		if filter.ActiveOnly && !a.Active() {
			continue
		}
		if filter.Specialization != "" && !a.Specializations.Contains(filter.Specialization) {
			continue
		}
		results = append(results, cloneAuditor(a))
	}
	s.mu.RUnlock()
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *MemoryStore) SetAuditorActive(ctx context.Context, id string, active bool) (*models.Auditor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auditors[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.IsActive = &active
	s.auditors[id] = a
	return cloneAuditor(a), nil
}

func (s *MemoryStore) CreateCertification(ctx context.Context, c *models.Certification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certifications[c.ID]; ok {
		return ErrDuplicate
	}
	if c.PendingKey != nil {
		for _, existing := range s.certifications {
			if existing.PendingKey != nil && *existing.PendingKey == *c.PendingKey {
				return ErrDuplicate
			}
		}
	}
	c.CreatedAt = s.stamp()
	c.UpdatedAt = c.CreatedAt
	s.certifications[c.ID] = *cloneCertification(*c)
	return nil
}

func (s *MemoryStore) GetCertification(ctx context.Context, id string) (*models.Certification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCertification(c), nil
}

func (s *MemoryStore) FindPending(ctx context.Context, restaurantId string, certType models.CertificationType) (*models.Certification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := models.PendingKeyFor(restaurantId, certType)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certifications {
		if c.PendingKey != nil && *c.PendingKey == key {
			return cloneCertification(c), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListCertifications(ctx context.Context, filter CertificationFilter) ([]*models.Certification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	results := make([]*models.Certification, 0)
	for _, c := range s.certifications {
		if filter.RestaurantId != "" && c.RestaurantId != filter.RestaurantId {
			continue
		}
		if filter.AuditorId != "" && (c.AuditorId == nil || *c.AuditorId != filter.AuditorId) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.CertificationType != "" && !c.CertificationType.Equal(filter.CertificationType) {
			continue
		}
		results = append(results, cloneCertification(c))
	}
	s.mu.RUnlock()
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *MemoryStore) FinalizeApproval(ctx context.Context, a Approval) (*models.Certification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certifications[a.CertificationId]
	if !ok || c.Status != models.CertificationStatusPending {
		return nil, ErrConflict
	}
	auditor, ok := s.auditors[a.AuditorId]
	if !ok {
		return nil, ErrNotFound
	}

	issuedAt, expiresAt := a.IssuedAt, a.ExpiresAt
	hash, code, auditorId := a.TransactionHash, a.AssetCode, a.AuditorId
	c.Status = models.CertificationStatusApproved
	c.AuditorId = &auditorId
	c.IssuedAt = &issuedAt
	c.ExpiresAt = &expiresAt
	c.DecidedAt = &issuedAt
	c.TransactionHash = &hash
	c.AssetCode = &code
	c.PendingKey = nil
	c.UpdatedAt = s.stamp()
	s.certifications[c.ID] = c

	auditor.CertificationsIssued++
	s.auditors[auditor.ID] = auditor

	if attempt, ok := s.attempts[c.ID]; ok {
		attempt.Status = models.IssuanceStatusSucceeded
		attempt.TransactionHash = hash
		attempt.LastError = nil
		attempt.UpdatedAt = c.UpdatedAt
		s.attempts[c.ID] = attempt
	}
	return cloneCertification(c), nil
}

func (s *MemoryStore) RejectCertification(ctx context.Context, r Rejection) (*models.Certification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certifications[r.CertificationId]
	if !ok || c.Status != models.CertificationStatusPending {
		return nil, ErrConflict
	}
	notes, auditorId, decidedAt := r.Notes, r.AuditorId, r.DecidedAt
	c.Status = models.CertificationStatusRejected
	c.AuditorId = &auditorId
	c.Notes = &notes
	c.DecidedAt = &decidedAt
	c.PendingKey = nil
	c.UpdatedAt = s.stamp()
	s.certifications[c.ID] = c
	return cloneCertification(c), nil
}

func (s *MemoryStore) GetIssuanceAttempt(ctx context.Context, certificationId string) (*models.IssuanceAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[certificationId]
	if !ok {
		return nil, nil
	}
	return &attempt, nil
}

func (s *MemoryStore) PutIssuanceAttempt(ctx context.Context, a *models.IssuanceAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := s.stamp()
	if existing, ok := s.attempts[a.CertificationId]; ok {
		if existing.Status == models.IssuanceStatusStarted {
			return ErrConflict
		}
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = stamp
	}
	a.UpdatedAt = stamp
	s.attempts[a.CertificationId] = *a
	return nil
}

func (s *MemoryStore) MarkIssuanceFailed(ctx context.Context, certificationId string, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[certificationId]
	if !ok {
		return nil
	}
	attempt.Status = models.IssuanceStatusFailed
	attempt.LastError = &reason
	attempt.UpdatedAt = s.stamp()
	s.attempts[certificationId] = attempt
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	if u.IsActive == nil {
		active := true
		u.IsActive = &active
	}
	u.CreatedAt = s.stamp()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range s.users {
		if id != u.ID && strings.EqualFold(other.Email, u.Email) {
			return ErrDuplicate
		}
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.Password = u.Password
	existing.UpdatedAt = s.stamp()
	s.users[u.ID] = existing
	*u = existing
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(filter.Name))
	email := strings.ToLower(strings.TrimSpace(filter.Email))
	s.mu.RLock()
	results := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if name != "" && !strings.Contains(strings.ToLower(u.Name), name) {
			continue
		}
		if email != "" && !strings.Contains(strings.ToLower(u.Email), email) {
			continue
		}
		results = append(results, &u)
	}
	s.mu.RUnlock()
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}
