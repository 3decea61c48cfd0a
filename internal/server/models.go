package server

type AuthSignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GalleryImage struct {
	ID  int64  `json:"id,omitempty"`
	Src string `json:"src"`
}

type ReviewRequest struct {
	Title     string         `json:"title"`
	Text      string         `json:"text"`
	Rating    int            `json:"rating"`
	ProductID int64          `json:"productId"`
	Tags      []string       `json:"tags"`
	Gallery   []GalleryImage `json:"gallery"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

type SearchRequest struct {
	Search string `json:"search"`
	Limit  int    `json:"limit"`
}

type UserUpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
}
