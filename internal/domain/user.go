package domain

// User represents a member account as stored in the credential store.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// UserPayload is the identity carried by a session token. It never holds the hash.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Payload strips the credential material from the record.
func (u User) Payload() UserPayload {
	return UserPayload{ID: u.ID, Username: u.Username}
}
