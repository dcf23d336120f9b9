package domain

import (
	"context"
	"errors"
	"time"

	"tattoostudio/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrNotFound is reported by stores for unknown documents, users and tokens.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is reported when a unique key is taken.
var ErrAlreadyExists = errors.New("already exists")

// SnapshotFunc receives the result of a watched query after every change.
type SnapshotFunc func(docs []models.Document, err error)

// DocumentStore is the document-collection backend.
type DocumentStore interface {
	Create(ctx context.Context, collection string, fields models.Fields) (string, error)
	Patch(ctx context.Context, collection, id string, fields models.Fields) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, q models.Query) ([]models.Document, error)
	Watch(ctx context.Context, collection string, q models.Query, onSnapshot SnapshotFunc) (func(), error)
}

// UserDirectory persists auth accounts.
type UserDirectory interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, string, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// TokenStore keeps issued sessions keyed by token.
type TokenStore interface {
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// AuthClient is the per-application view of the auth backend.
type AuthClient interface {
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	OnAuthStateChanged(fn func(user *models.User)) (unsubscribe func())
}

// ChangeFeed carries collection change notifications between store and watchers.
type ChangeFeed interface {
	PublishChange(collection string)
	SubscribeChanges(collection string, fn func()) (unsubscribe func())
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertAppointment(ctx context.Context, appointment *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.Status) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, appointment *models.Appointment) error
}
