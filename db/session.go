package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Session represents the schema for the "sessions" collection.
// A session is created at sign in and removed at sign out. Expired sessions are
// removed by a TTL index on expiresAt.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	AccountID primitive.ObjectID `bson:"accountId"`
	UserID    primitive.ObjectID `bson:"userId"`
	CreatedAt time.Time          `bson:"createdAt"`
	ExpiresAt time.Time          `bson:"expiresAt"`
}

// SessionService provides methods to interact with the "sessions" collection.
type SessionService struct {
	Collection *mongo.Collection
}

// NewSessionService creates a new SessionService.
func NewSessionService(db *Database) *SessionService {
	return &SessionService{
		Collection: db.Database.Collection("sessions"),
	}
}

// InsertSession inserts a new Session document and returns its ID.
func (s *SessionService) InsertSession(ctx context.Context, session *Session) (primitive.ObjectID, error) {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if _, err := s.Collection.InsertOne(ctx, session); err != nil {
		return primitive.NilObjectID, err
	}
	return session.ID, nil
}

// GetSession retrieves a Session by its ID.
func (s *SessionService) GetSession(ctx context.Context, id primitive.ObjectID) (*Session, error) {
	var session Session
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a Session by its ID.
func (s *SessionService) DeleteSession(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DeleteAccountSessions deletes every Session of an account and returns how many were removed.
func (s *SessionService) DeleteAccountSessions(ctx context.Context, accountID primitive.ObjectID) (int64, error) {
	res, err := s.Collection.DeleteMany(ctx, bson.M{"accountId": accountID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
