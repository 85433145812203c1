package session

import "time"

// Storage keys. They must stay stable so a restarted client can resume.
const (
	KeyAccessToken = "access_token"
	KeyLoginTime   = "login_time"
	KeyUserData    = "user_data"
	KeyUserEmail   = "user_email"
	KeyThreadID    = "user_thread_id"
	KeyRememberMe  = "remember_me"
	KeyPreferences = "preferences"
)

// DefaultTimeout is how long a login stays valid on the client.
const DefaultTimeout = 30 * time.Minute

// Profile is the cached snapshot of the authenticated user.
type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Theme is the appearance preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// Notifications holds the notification toggles from the settings screen.
type Notifications struct {
	Email       bool `json:"email"`
	Push        bool `json:"push"`
	ChatUpdates bool `json:"chat_updates"`
}

// Preferences are per-device settings. They survive logout.
type Preferences struct {
	Theme         Theme         `json:"theme"`
	Notifications Notifications `json:"notifications"`
}

// DefaultPreferences returns the settings used before the user changes anything.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme: ThemeSystem,
		Notifications: Notifications{
			Email:       true,
			Push:        true,
			ChatUpdates: true,
		},
	}
}
