package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection holds the user documents
const DefaultCollection = "users"

const (
	emailIndex    = "users_email_unique"
	usernameIndex = "users_username_unique"
)

// userDocument is the stored shape of accounts.User
type userDocument struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	Username     string     `bson:"username"`
	Email        string     `bson:"email"`
	PasswordHash string     `bson:"password_hash"`
	IsActive     bool       `bson:"is_active"`
	IsSuperuser  bool       `bson:"is_superuser"`
	LastLogin    *time.Time `bson:"last_login,omitempty"`
	CreatedAt    *time.Time `bson:"created_at,omitempty"`
	UpdatedAt    *time.Time `bson:"updated_at,omitempty"`
}

func toDocument(u *accounts.User) userDocument {
	return userDocument{
		ID:           u.ID.String(),
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsSuperuser:  u.IsSuperuser,
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d userDocument) user() (*accounts.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "stored user has a malformed id").
			WithMetadata(map[string]any{"id": d.ID})
	}
	return &accounts.User{
		ID:           id,
		Name:         d.Name,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		IsActive:     d.IsActive,
		IsSuperuser:  d.IsSuperuser,
		LastLogin:    utc(d.LastLogin),
		CreatedAt:    utc(d.CreatedAt),
		UpdatedAt:    utc(d.UpdatedAt),
	}, nil
}

// mongo stores milliseconds in UTC
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// Users implements accounts.Users on a mongo collection
type Users struct {
	coll      *mongo.Collection
	hasher    accounts.PasswordHasher
	useHashid bool
	now       func() time.Time
}

var _ accounts.Users = (*Users)(nil)

// Option configures the mongo users store
type Option func(*Users)

// WithHashid derives new user ids from the email address
func WithHashid(enabled bool) Option {
	return func(u *Users) {
		u.useHashid = enabled
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(u *Users) {
		if now != nil {
			u.now = now
		}
	}
}

// WithCollection stores users in a collection other than DefaultCollection
func WithCollection(name string) Option {
	return func(u *Users) {
		if name != "" {
			u.coll = u.coll.Database().Collection(name)
		}
	}
}

// New returns a Users store on db. Call EnsureIndexes once before use.
func New(db *mongo.Database, hasher accounts.PasswordHasher, opts ...Option) *Users {
	u := &Users{
		coll:   db.Collection(DefaultCollection),
		hasher: hasher,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

// EnsureIndexes creates the unique email and username indexes
func (u *Users) EnsureIndexes(ctx context.Context) error {
	_, err := u.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndex),
		},
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user indexes")
	}
	return nil
}

func (u *Users) GetByID(ctx context.Context, id string) (*accounts.User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, accounts.ErrUserNotFound
	}
	return u.getBy(ctx, "_id", uid.String())
}

func (u *Users) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	return u.getBy(ctx, "username", username)
}

func (u *Users) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return u.getBy(ctx, "email", email)
}

func (u *Users) getBy(ctx context.Context, field, value string) (*accounts.User, error) {
	var doc userDocument
	err := u.coll.FindOne(ctx, bson.D{{Key: field, Value: value}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, accounts.ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user").
			WithMetadata(map[string]any{field: value})
	}
	return doc.user()
}

func (u *Users) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return u.exists(ctx, "username", username)
}

func (u *Users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return u.exists(ctx, "email", email)
}

func (u *Users) exists(ctx context.Context, field, value string) (bool, error) {
	n, err := u.coll.CountDocuments(ctx, bson.D{{Key: field, Value: value}}, options.Count().SetLimit(1))
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user existence")
	}
	return n > 0, nil
}

func (u *Users) Create(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	if user.ID == uuid.Nil {
		user.ID = u.newID(user.Email)
	}
	user.MarkPersisted(u.now())

	if _, err := u.coll.InsertOne(ctx, toDocument(user)); err != nil {
		return nil, mapWriteError(err)
	}
	return user, nil
}

func (u *Users) Save(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	if user == nil {
		return nil, accounts.ErrUserNotFound
	}
	if user.ID == uuid.Nil {
		return u.Create(ctx, user)
	}

	user.MarkPersisted(u.now())
	doc := toDocument(user)

	set := bson.D{
		{Key: "name", Value: doc.Name},
		{Key: "username", Value: doc.Username},
		{Key: "email", Value: doc.Email},
		{Key: "password_hash", Value: doc.PasswordHash},
		{Key: "is_active", Value: doc.IsActive},
		{Key: "is_superuser", Value: doc.IsSuperuser},
		{Key: "last_login", Value: doc.LastLogin},
		{Key: "updated_at", Value: doc.UpdatedAt},
	}
	return user, u.update(ctx, user, set, mapWriteError)
}

func (u *Users) Delete(ctx context.Context, user *accounts.User) error {
	res, err := u.coll.DeleteOne(ctx, byID(user))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}
	if res.DeletedCount == 0 {
		return accounts.ErrUserNotFound
	}
	return nil
}

func (u *Users) SetPassword(ctx context.Context, user *accounts.User, password string) error {
	if err := user.SetPassword(u.hasher, password); err != nil {
		return err
	}
	user.MarkPersisted(u.now())

	set := bson.D{
		{Key: "password_hash", Value: user.PasswordHash},
		{Key: "updated_at", Value: user.UpdatedAt},
	}
	return u.update(ctx, user, set, func(err error) error {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	})
}

func (u *Users) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	now := u.now().UTC()
	user.LastLogin = &now
	user.MarkPersisted(now)

	set := bson.D{
		{Key: "last_login", Value: now},
		{Key: "updated_at", Value: user.UpdatedAt},
	}
	return u.update(ctx, user, set, func(err error) error {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login")
	})
}

func (u *Users) update(ctx context.Context, user *accounts.User, set bson.D, mapErr func(error) error) error {
	res, err := u.coll.UpdateOne(ctx, byID(user), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return accounts.ErrUserNotFound
	}
	return nil
}

func (u *Users) newID(email string) uuid.UUID {
	if u.useHashid && email != "" {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

func byID(user *accounts.User) bson.D {
	return bson.D{{Key: "_id", Value: user.ID.String()}}
}

// mapWriteError turns unique index violations into the matching
// conflict error
func mapWriteError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist user")
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndex):
		return accounts.ErrEmailInUse
	case strings.Contains(msg, usernameIndex):
		return accounts.ErrUsernameInUse
	}
	return goerrors.Wrap(err, goerrors.CategoryConflict, "user violates a unique constraint")
}
