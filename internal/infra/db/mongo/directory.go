package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
)

// Directory resolves display profiles from the account subsystem's users
// collection. Read-only: user management belongs to that subsystem.
type Directory struct {
	users *mongo.Collection
}

// NewDirectory builds a directory over the users collection.
func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{users: db.Collection("users")}
}

type userDocument struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
	Role string `bson:"role"`
}

// Profile resolves a user's display profile.
func (d *Directory) Profile(ctx context.Context, userID string) (identity.Profile, error) {
	var doc userDocument
	if err := d.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return identity.Profile{}, identity.ErrProfileNotFound
		}
		return identity.Profile{}, err
	}
	return identity.Profile{ID: doc.ID, Name: doc.Name, Role: doc.Role}, nil
}
