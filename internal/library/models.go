package library

import "time"

// Root is the ParentID of top level MyTag categories.
const Root = "root"

// Parent categories used for MyTags.
const (
	CategorySituation = "Situation"
	CategoryGenre     = "Genre"
)

// Content is a track row.
type Content struct {
	ID         string    `gorm:"column:ID;primaryKey"`
	Title      string    `gorm:"column:Title"`
	FolderPath string    `gorm:"column:FolderPath;index"`
	GenreID    string    `gorm:"column:GenreID"`
	Rating     int       `gorm:"column:Rating"`
	UUID       string    `gorm:"column:UUID"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (Content) TableName() string { return "djmdContent" }

// Genre is a genre row referenced by Content.GenreID.
type Genre struct {
	ID        string    `gorm:"column:ID;primaryKey"`
	Name      string    `gorm:"column:Name;index"`
	UUID      string    `gorm:"column:UUID"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Genre) TableName() string { return "djmdGenre" }

// MyTag is a custom tag. Categories have ParentID Root and Attribute 1.
type MyTag struct {
	ID        string    `gorm:"column:ID;primaryKey"`
	Seq       int       `gorm:"column:Seq"`
	Name      string    `gorm:"column:Name;index"`
	Attribute int       `gorm:"column:Attribute"`
	ParentID  string    `gorm:"column:ParentID"`
	UUID      string    `gorm:"column:UUID"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MyTag) TableName() string { return "djmdMyTag" }

// SongMyTag links a track to a MyTag.
type SongMyTag struct {
	ID        string    `gorm:"column:ID;primaryKey"`
	MyTagID   string    `gorm:"column:MyTagID;index"`
	ContentID string    `gorm:"column:ContentID;index"`
	TrackNo   int       `gorm:"column:TrackNo"`
	UUID      string    `gorm:"column:UUID"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SongMyTag) TableName() string { return "djmdSongMyTag" }
