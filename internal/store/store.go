package store

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"
)

// Store is the persistence interface for craftlist.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Servers
	ListServers(ctx context.Context) ([]Server, error)
	ListUserServers(ctx context.Context, userID int64) ([]Server, error)
	GetServer(ctx context.Context, id int64) (*Server, error)
	AddServer(ctx context.Context, userID int64, in ServerInput) (*Server, error)

	// Player samples
	ListPlayersGraph(ctx context.Context) ([]PlayersSample, error)
	AddPlayersSample(ctx context.Context, serverID int64, online int, at time.Time) (*PlayersSample, error)

	// Categories
	ListCategories(ctx context.Context) ([]Category, error)
	AddCategory(ctx context.Context, name string) (*Category, error)
	UpdateCategory(ctx context.Context, id int64, name string) (*Category, error)
	RemoveCategory(ctx context.Context, id int64) error

	// Versions
	ListVersions(ctx context.Context) ([]Version, error)
	AddVersion(ctx context.Context, name string, protocol int) (*Version, error)
	UpdateVersion(ctx context.Context, id int64, name string, protocol int) (*Version, error)
	RemoveVersion(ctx context.Context, id int64) error

	Close() error
}

// MaxServersPerUser caps how many servers one owner may list.
const MaxServersPerUser = 3

// Error is a store failure that maps to a client-facing status.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string   { return e.Message }
func (e *Error) StatusCode() int { return e.Code }

var (
	ErrServerNotFound   = &Error{Code: http.StatusNotFound, Message: "No such server exists"}
	ErrCategoryNotFound = &Error{Code: http.StatusNotFound, Message: "No such category exist"}
	ErrVersionNotFound  = &Error{Code: http.StatusNotFound, Message: "No such version exist"}

	ErrServerExists   = &Error{Code: http.StatusConflict, Message: "Server already exists"}
	ErrCategoryExists = &Error{Code: http.StatusConflict, Message: "Category already exists"}
	ErrVersionExists  = &Error{Code: http.StatusConflict, Message: "Version already exists"}

	ErrInvalidCategories = &Error{Code: http.StatusBadRequest, Message: "These categories are invalid"}
	ErrInvalidVersion    = &Error{Code: http.StatusBadRequest, Message: "Version like this does not exist"}
	ErrServerLimit       = &Error{Code: http.StatusBadRequest, Message: "You have reached limit of servers"}
	ErrVersionInUse      = &Error{Code: http.StatusConflict, Message: "Version is used by a server"}
)

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == http.StatusNotFound
}

// Server is one row of the joined server listing.
type Server struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UserID      int64     `json:"user_id"`
	IsPremium   bool      `json:"is_premium"`
	CreatedAt   time.Time `json:"created_at"`
	Address     string    `json:"address"`
	MinVersion  string    `json:"min_version"`
	MaxVersion  string    `json:"max_version"`
	Categories  []string  `json:"categories"`
}

// Equal reports structural equality.
func (s Server) Equal(o Server) bool {
	return s.ID == o.ID &&
		s.Name == o.Name &&
		s.Description == o.Description &&
		s.UserID == o.UserID &&
		s.IsPremium == o.IsPremium &&
		s.CreatedAt.Equal(o.CreatedAt) &&
		s.Address == o.Address &&
		s.MinVersion == o.MinVersion &&
		s.MaxVersion == o.MaxVersion &&
		slices.Equal(s.Categories, o.Categories)
}

// ServerInput is the payload for registering a server.
// Versions and categories are referenced by name.
type ServerInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	MinVersion  string   `json:"min_version"`
	MaxVersion  string   `json:"max_version"`
	Categories  []string `json:"categories"`
}

// PlayersSample is one player-count measurement.
type PlayersSample struct {
	ServerID      int64     `json:"server_id"`
	PlayersOnline int       `json:"players_online"`
	Date          time.Time `json:"date"`
}

// Equal reports structural equality.
func (p PlayersSample) Equal(o PlayersSample) bool {
	return p.ServerID == o.ServerID &&
		p.PlayersOnline == o.PlayersOnline &&
		p.Date.Equal(o.Date)
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Version struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}
