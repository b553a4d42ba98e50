package domain

import "golang.org/x/crypto/bcrypt"

// User is the minimal account model the consent step needs: the adapter
// authenticates the responding user by email and password before any
// consent decision is recorded.
type User struct {
	ID                string `bson:"_id"                json:"id"`
	Email             string `bson:"email"              json:"email"`
	Password          string `bson:"password"           json:"-"` // bcrypt hash
	CreationTimestamp int64  `bson:"creation_timestamp" json:"creation_timestamp"`
}

// VerifyPassword checks a plaintext password against the stored hash.
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}
