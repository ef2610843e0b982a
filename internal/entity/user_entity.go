package entity

type User struct {
	Id       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}
