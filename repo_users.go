package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user store. Lookup misses return ErrUserNotFound.
type Users interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *User) (*User, error)
	Save(ctx context.Context, user *User) (*User, error)
	Delete(ctx context.Context, user *User) error
	SetPassword(ctx context.Context, user *User, password string) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// users layers the lookups and partial updates the generic repository
// does not cover on top of it
type users struct {
	repository.Repository[*User]
	db        *bun.DB
	hasher    PasswordHasher
	useHashid bool
	now       func() time.Time
}

var _ Users = (*users)(nil)

// UsersOption configures the bun users store
type UsersOption func(*users)

// WithUsersHashid derives new user ids from the email address
func WithUsersHashid(enabled bool) UsersOption {
	return func(u *users) {
		u.useHashid = enabled
	}
}

// WithUsersClock overrides the time source used for timestamps
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUsersRepository returns a Users store backed by bun
func NewUsersRepository(db *bun.DB, hasher PasswordHasher, opts ...UsersOption) Users {
	base := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	repo := &users{
		Repository: base,
		db:         db,
		hasher:     hasher,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *users) GetByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrUserNotFound
	}

	user, err := a.Repository.GetByID(ctx, uid.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user").
			WithMetadata(map[string]any{"id": id})
	}
	return user, nil
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.getBy(ctx, a.db, "username", username)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getBy(ctx, a.db, "email", email)
}

func (a *users) getBy(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user").
			WithMetadata(map[string]any{column: value})
	}

	return record, nil
}

func (a *users) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return a.exists(ctx, a.db, "username", username)
}

func (a *users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.exists(ctx, a.db, "email", email)
}

func (a *users) exists(ctx context.Context, tx bun.IDB, column, value string) (bool, error) {
	ok, err := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user existence")
	}
	return ok, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	a.prepareUserDefaults(user)

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, mapConstraintError(err)
	}

	return created, nil
}

func (a *users) Save(ctx context.Context, user *User) (*User, error) {
	return a.SaveTx(ctx, a.db, user)
}

func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	if user.ID == uuid.Nil {
		return a.CreateTx(ctx, tx, user)
	}

	user.MarkPersisted(a.now())

	res, err := tx.NewUpdate().
		Model(user).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, mapConstraintError(err)
	}

	if err := affectedOne(res); err != nil {
		return nil, err
	}

	return user, nil
}

func (a *users) Delete(ctx context.Context, user *User) error {
	res, err := a.db.NewDelete().
		Model(user).
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}
	return affectedOne(res)
}

func (a *users) SetPassword(ctx context.Context, user *User, password string) error {
	return a.SetPasswordTx(ctx, a.db, user, password)
}

func (a *users) SetPasswordTx(ctx context.Context, tx bun.IDB, user *User, password string) error {
	if err := user.SetPassword(a.hasher, password); err != nil {
		return err
	}

	user.MarkPersisted(a.now())

	res, err := tx.NewUpdate().
		Model(user).
		Column("password_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	return affectedOne(res)
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := a.now().UTC()
	user.LastLogin = &now
	user.MarkPersisted(now)

	res, err := tx.NewUpdate().
		Model(user).
		Column("last_login", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login")
	}
	return affectedOne(res)
}

func (a *users) prepareUserDefaults(user *User) {
	if user.ID == uuid.Nil {
		user.ID = a.newID(user.Email)
	}
	user.MarkPersisted(a.now())
}

func (a *users) newID(email string) uuid.UUID {
	if a.useHashid && email != "" {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// mapConstraintError turns unique index violations from sqlite or
// postgres into the matching conflict error.
func mapConstraintError(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate key") {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist user")
	}

	switch {
	case strings.Contains(msg, "email"):
		return ErrEmailInUse
	case strings.Contains(msg, "username"):
		return ErrUsernameInUse
	}

	return goerrors.Wrap(err, goerrors.CategoryConflict, "user violates a unique constraint")
}
