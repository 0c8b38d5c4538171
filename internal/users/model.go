package users

import (
	"strings"
	"time"
)

// User is a registered reader account.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;size:30;not null;uniqueIndex:idx_users_username"`
	Password  string    `gorm:"column:password;type:text;not null"`
	FirstName string    `gorm:"column:first_name;size:50;not null"`
	LastName  string    `gorm:"column:last_name;size:50;not null"`
	Email     string    `gorm:"column:email;size:100;not null;uniqueIndex:idx_users_email"`
	ImageURL  *string   `gorm:"column:image_url;type:text"`
	Bio       *string   `gorm:"column:bio;type:text"`
	Location  *string   `gorm:"column:location;size:30"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// DisplayName is the name shown next to comments and forum posts.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SignupRequest carries the fields required to open an account.
type SignupRequest struct {
	Username  string `json:"username" validate:"required,max=30,username"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	Email     string `json:"email" validate:"required,email,max=100"`
	FirstName string `json:"first_name" validate:"notblank,max=50"`
	LastName  string `json:"last_name" validate:"notblank,max=50"`
}

// UserUpdate is a partial profile update; nil fields keep their stored value.
type UserUpdate struct {
	FirstName *string `json:"first_name" validate:"omitnil,notblank,max=50"`
	LastName  *string `json:"last_name" validate:"omitnil,notblank,max=50"`
	Email     *string `json:"email" validate:"omitnil,email,max=100"`
	ImageURL  *string `json:"image_url" validate:"omitnil,omitempty,url"`
	Bio       *string `json:"bio"`
	Location  *string `json:"location" validate:"omitnil,max=30"`
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
