package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Account represents the schema for the "accounts" collection. It holds the credentials,
// the public profile lives in the "users" collection.
type Account struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email     string             `bson:"email" json:"email"`
	Name      string             `bson:"name" json:"name"`
	Password  []byte             `bson:"password" json:"-"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// AccountService provides methods to interact with the "accounts" collection.
type AccountService struct {
	Collection *mongo.Collection
}

// NewAccountService creates a new AccountService.
func NewAccountService(db *Database) *AccountService {
	return &AccountService{
		Collection: db.Database.Collection("accounts"),
	}
}

// InsertAccount inserts a new Account document and returns its ID.
func (s *AccountService) InsertAccount(ctx context.Context, account *Account) (primitive.ObjectID, error) {
	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	if _, err := s.Collection.InsertOne(ctx, account); err != nil {
		return primitive.NilObjectID, err
	}
	return account.ID, nil
}

// GetAccountByEmail retrieves an Account by its email address.
func (s *AccountService) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	if err := s.Collection.FindOne(ctx, bson.M{"email": email}).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByID retrieves an Account by its ID.
func (s *AccountService) GetAccountByID(ctx context.Context, id primitive.ObjectID) (*Account, error) {
	var account Account
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteAccount deletes an Account by its ID.
func (s *AccountService) DeleteAccount(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
