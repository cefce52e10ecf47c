package main

import "time"

// Demo catalog models exercising scalar fields, to-one relations and
// many-to-many relations.

type Publisher struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	Address string `json:"address"`

	Books []Book `json:"books,omitempty"`
}

func (Publisher) TableName() string {
	return "publishers"
}

type Author struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	Name     string     `gorm:"not null" json:"name"`
	Birthday *time.Time `json:"birthday,omitempty"`

	Books []Book `gorm:"many2many:book_authors;" json:"books,omitempty"`
}

func (Author) TableName() string {
	return "authors"
}

type Book struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	ISBN        string     `gorm:"column:isbn" json:"isbn"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	PublisherID uint       `gorm:"not null" json:"publisher_id"`
	Publisher   *Publisher `json:"publisher,omitempty"`

	Authors []Author `gorm:"many2many:book_authors;" json:"authors,omitempty"`
}

func (Book) TableName() string {
	return "books"
}
