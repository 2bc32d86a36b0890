package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
	"github.com/foodtrust/foodtrust_backend/utils"
)

// RegisterUser creates a platform user. Anyone may register a consumer.
// Admin and auditor users are created by an admin. A restaurant user is
// created by an admin or by whoever holds the restaurant's ledger secret.
func (e *Engine) RegisterUser(ctx context.Context, input models.NewUser, actorRole models.UserRole) (*models.User, error) {
	if err := input.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	isAdmin := actorRole == models.UserRoleAdmin
	switch input.Role {
	case models.UserRoleAdmin:
		if !isAdmin {
			return nil, ErrForbidden
		}
	case models.UserRoleAuditor:
		if !isAdmin {
			return nil, ErrForbidden
		}
		if _, err := e.GetAuditor(ctx, *input.AuditorId); err != nil {
			return nil, err
		}
	case models.UserRoleRestaurant:
		restaurant, err := e.getRestaurant(ctx, *input.RestaurantId)
		if err != nil {
			return nil, err
		}
		if !isAdmin && !ownsRestaurant(restaurant, input.LedgerSecret) {
			return nil, ErrForbidden
		}
	}
	if _, err := e.store.GetUserByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        input.Email,
		Password:     string(hashed),
		Role:         input.Role,
		AuditorId:    input.AuditorId,
		RestaurantId: input.RestaurantId,
		IsActive:     utils.NewTrue(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	e.log(ctx, logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return user, nil
}

func ownsRestaurant(r *models.Restaurant, secret string) bool {
	if secret == "" {
		return false
	}
	address, err := ledger.AddressOfSecret(secret)
	return err == nil && address == r.LedgerAddress
}

// EnsureAdmin creates the bootstrap admin when no user holds the email yet.
func (e *Engine) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if name == "" {
		name = "Administrator"
	}
	if _, err := e.store.GetUserByEmail(ctx, utils.NormalizeEmail(email)); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err := e.RegisterUser(ctx, models.NewUser{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     models.UserRoleAdmin,
	}, models.UserRoleAdmin)
	return err
}

// Login checks the credentials and issues a bearer token. An auditor user's
// token carries the auditor id used for approve and reject; a restaurant
// user's token carries the restaurant it may request for.
func (e *Engine) Login(ctx context.Context, input models.LoginInput) (*models.LoginInfo, error) {
	input.Email = utils.NormalizeEmail(input.Email)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, invalidInput(err)
	}
	user, err := e.store.GetUserByEmail(ctx, input.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, ErrForbidden
	}

	auditorId, restaurantId := "", ""
	if user.Role == models.UserRoleAuditor && user.AuditorId != nil {
		auditorId = *user.AuditorId
	}
	if user.Role == models.UserRoleRestaurant && user.RestaurantId != nil {
		restaurantId = *user.RestaurantId
	}
	token, err := utils.JwtGenerate(user.ID, string(user.Role), auditorId, restaurantId)
	if err != nil {
		return nil, err
	}
	return &models.LoginInfo{
		Token:     token,
		TokenType: "bearer",
		UserId:    user.ID,
		Name:      user.Name,
		Role:      user.Role,
	}, nil
}

func (e *Engine) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := e.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateMe changes the caller's name, email or password.
func (e *Engine) UpdateMe(ctx context.Context, userId string, input models.UpdateUser) (*models.User, error) {
	if err := input.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	user, err := e.GetUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		user.Name = *input.Name
	}
	if input.Email != nil && *input.Email != user.Email {
		if _, err := e.store.GetUserByEmail(ctx, *input.Email); err == nil {
			return nil, ErrEmailTaken
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		user.Email = *input.Email
	}
	if input.Password != nil {
		hashed, err := utils.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		user.Password = string(hashed)
	}
	if err := e.store.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrEmailTaken
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	e.log(ctx, logrus.Fields{"user_id": user.ID}).Info("user updated")
	return user, nil
}

// ListUsers filters by case-insensitive substrings of name and email.
func (e *Engine) ListUsers(ctx context.Context, name, email string) ([]*models.User, error) {
	return e.store.ListUsers(ctx, store.UserFilter{Name: name, Email: email})
}

// DeleteUser removes a user. Users may delete themselves; admins may delete anyone.
func (e *Engine) DeleteUser(ctx context.Context, actorId string, actorRole models.UserRole, id string) error {
	if actorId != id && actorRole != models.UserRoleAdmin {
		return ErrForbidden
	}
	if err := e.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	e.log(ctx, logrus.Fields{"deleted_user_id": id}).Info("user deleted")
	return nil
}
