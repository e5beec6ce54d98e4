package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// UserEntity is a caller identity. APIToken is the opaque bearer credential
// resolved by the auth middleware; how tokens are issued is out of scope.
type UserEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name      string    `gorm:"type:varchar(255);not null"`
	APIToken  string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func (u *UserEntity) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ClientEntity is a customer account owned by a user. Executions are owned
// transitively: execution -> project -> client -> owner.
type ClientEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"column:client_name;type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Owner *UserEntity `gorm:"foreignKey:OwnerID"`
}

func (ClientEntity) TableName() string {
	return "clients"
}

func (c *ClientEntity) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ProjectEntity carries the content brief the crew runs against.
type ProjectEntity struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ClientID       uuid.UUID      `gorm:"type:uuid;not null;index"`
	Name           string         `gorm:"column:project_name;type:varchar(255);not null"`
	Topic          string         `gorm:"type:text;not null"`
	ContentType    string         `gorm:"type:varchar(100);not null"`
	Audience       string         `gorm:"type:text"`
	AILanguageCode string         `gorm:"type:varchar(100)"`
	Keywords       pq.StringArray `gorm:"type:text[]"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`

	Client *ClientEntity `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE"`
}

func (ProjectEntity) TableName() string {
	return "projects"
}

func (p *ProjectEntity) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
