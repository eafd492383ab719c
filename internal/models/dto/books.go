package dto

type CreateBookRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	PublishedYear int    `json:"publishedYear"`
	Genre         string `json:"genre"`
}

// UpdateBookRequest edits catalog fields only; nil means "leave unchanged".
type UpdateBookRequest struct {
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	ISBN          *string `json:"isbn"`
	PublishedYear *int    `json:"publishedYear"`
	Genre         *string `json:"genre"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
