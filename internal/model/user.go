package model

// User is the profile returned by /users/me and the admin user endpoints.
type User struct {
	ID              string      `json:"id"`
	AccountType     AccountType `json:"accountType"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	Society         string      `json:"society"`
	Building        string      `json:"building"`
	Apartment       string      `json:"apartment"`
	ProfileImageURL *string     `json:"profileImageUrl"`
	IsBanned        bool        `json:"isBanned"`
	LateFeePercent  float64     `json:"lateFeePercent"`
}

// IsAdmin reports whether the account may use the admin endpoints.
func (u User) IsAdmin() bool { return u.AccountType == AccountAdminDriver }

// Contact converts a user into a messaging contact.
func (u User) Contact() Contact {
	return Contact{ID: u.ID, Name: u.Name, AccountType: u.AccountType, ProfileImageURL: u.ProfileImageURL}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

type RefreshResult struct {
	AccessToken *string `json:"accessToken"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Society   *string `json:"society,omitempty"`
	Building  *string `json:"building,omitempty"`
	Apartment *string `json:"apartment,omitempty"`
}

// ImageUpload is the base64 JSON image body used by the profile image endpoint.
type ImageUpload struct {
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	DataBase64 string `json:"dataBase64"`
}

type ProfileImageRequest struct {
	Image ImageUpload `json:"image"`
}

// UserStatusUpdate is the admin status PATCH; nil fields are left unchanged.
type UserStatusUpdate struct {
	IsBanned       *bool    `json:"isBanned,omitempty"`
	LateFeePercent *float64 `json:"lateFeePercent,omitempty"`
}

// NewUser is the multipart form submitted by an admin to create an account.
type NewUser struct {
	AccountType AccountType
	Name        string
	Email       string
	Phone       string
	Password    string
	Society     string
	Building    string
	Apartment   string

	ImageName string
	ImageType string
	Image     []byte
}
