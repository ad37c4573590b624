package domain

type UserID string

// User is the signed-in identity all data is scoped to.
type User struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
}

// SignInRequest carries optional hints for an identity provider.
type SignInRequest struct {
	Email string
}
