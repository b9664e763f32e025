package models

import "time"

type Account struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	PassHash  []byte
	Verified  bool
	About     string
	Mobile    string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountView is the client-facing projection of an Account. It never carries
// the password hash or OTP data.
type AccountView struct {
	ID        string    `json:"_id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	About     string    `json:"about"`
	Mobile    string    `json:"mobile"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Image:     a.Image,
		About:     a.About,
		Mobile:    a.Mobile,
		Verified:  a.Verified,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// ProfileUpdate holds the profile fields a user may change. Nil fields are left as is.
type ProfileUpdate struct {
	About  *string
	Mobile *string
	Image  *string
}

// PendingRegistration bridges signup and OTP verification.
type PendingRegistration struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"pass_hash"`
	OTP       string    `json:"otp"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// * IsExpired reports whether the entry has a deadline and it has passed
func (p *PendingRegistration) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

const PurposeOTP = "otp"

// Message is what gets handed to the notification channel.
type Message struct {
	Email   string `json:"to"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}
