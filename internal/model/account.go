package model

// User is the identity a request acts as.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Guest identity used whenever no identity provider is wired in.
const (
	GuestUserID    = "guest"
	GuestUserName  = "Guest User"
	GuestUserEmail = "guest@example.com"
)

// GuestUser returns the implicit guest identity.
func GuestUser() User {
	return User{ID: GuestUserID, Name: GuestUserName, Email: GuestUserEmail}
}

// AccountSettings holds the addresses used for personalized quick actions.
type AccountSettings struct {
	HomeAddress string `json:"home_address"`
	WorkAddress string `json:"work_address"`
}

// AccountResponse is the response for the account page.
type AccountResponse struct {
	User     User            `json:"user"`
	Settings AccountSettings `json:"settings"`
}

// SettingsSavedResponse acknowledges a settings submission.
type SettingsSavedResponse struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Settings    AccountSettings `json:"settings"`
}

// GuestLoginResponse carries the token issued to a guest.
type GuestLoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
