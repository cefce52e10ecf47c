package reflection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classifierPublisher struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`

	Books []classifierBook `gorm:"foreignKey:PublisherID" json:"books,omitempty"`
}

type classifierAuthor struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

type classifierBook struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	PublisherID uint                 `gorm:"not null" json:"publisher_id"`
	Publisher   *classifierPublisher `json:"publisher,omitempty"`

	EditorID *uint             `json:"editor_id,omitempty"`
	Editor   *classifierAuthor `gorm:"foreignKey:EditorID" json:"editor,omitempty"`

	Authors []classifierAuthor `gorm:"many2many:classifier_book_authors;" json:"authors,omitempty"`
}

type bunArticle struct {
	ID       int64       `bun:"id,pk,autoincrement" json:"id"`
	Title    string      `bun:"title,notnull" json:"title"`
	AuthorID int64       `bun:"author_id" json:"author_id"`
	Author   *bunProfile `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	Tags     []bunTag    `bun:"m2m:article_tags" json:"tags,omitempty"`
}

type bunProfile struct {
	ID   int64  `bun:"id,pk" json:"id"`
	Name string `bun:"name" json:"name"`
}

type bunTag struct {
	ID int64 `bun:"id,pk" json:"id"`
}

func TestClassifyScalar(t *testing.T) {
	desc, err := Classify(classifierBook{}, "title")
	require.NoError(t, err)

	assert.Equal(t, FieldScalar, desc.Category)
	assert.Equal(t, "title", desc.StorageAttr)
	assert.Equal(t, "Title", desc.StructField)

	desc, err = Classify(classifierBook{}, "published_at")
	require.NoError(t, err)
	assert.Equal(t, FieldScalar, desc.Category, "time.Time columns are scalars, not relations")
}

func TestClassifyToOne(t *testing.T) {
	desc, err := Classify(classifierBook{}, "publisher")
	require.NoError(t, err)

	assert.Equal(t, FieldToOne, desc.Category)
	assert.Equal(t, "publisher_id", desc.StorageAttr)
	assert.Equal(t, "Publisher", desc.StructField)
	assert.Equal(t, "PublisherID", desc.FKStructField)

	// Explicit gorm foreignKey tag overrides the naming convention.
	desc, err = Classify(classifierBook{}, "editor")
	require.NoError(t, err)
	assert.Equal(t, FieldToOne, desc.Category)
	assert.Equal(t, "EditorID", desc.FKStructField)
}

func TestClassifyToManyAndReverse(t *testing.T) {
	desc, err := Classify(classifierBook{}, "authors")
	require.NoError(t, err)
	assert.Equal(t, FieldToManyOrReverse, desc.Category)
	assert.Equal(t, "authors", desc.StorageAttr)

	desc, err = Classify(classifierPublisher{}, "books")
	require.NoError(t, err)
	assert.Equal(t, FieldToManyOrReverse, desc.Category, "reverse has-many is multi-valued")
}

func TestClassifyBunTags(t *testing.T) {
	desc, err := Classify(bunArticle{}, "author")
	require.NoError(t, err)
	assert.Equal(t, FieldToOne, desc.Category)
	assert.Equal(t, "AuthorID", desc.FKStructField)

	desc, err = Classify(bunArticle{}, "tags")
	require.NoError(t, err)
	assert.Equal(t, FieldToManyOrReverse, desc.Category)
}

func TestClassifyUnknownField(t *testing.T) {
	_, err := Classify(classifierBook{}, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestRelatedModel(t *testing.T) {
	related, err := RelatedModel(classifierBook{}, "publisher")
	require.NoError(t, err)
	_, ok := related.(classifierPublisher)
	assert.True(t, ok)

	related, err = RelatedModel(classifierBook{}, "authors")
	require.NoError(t, err)
	_, ok = related.(classifierAuthor)
	assert.True(t, ok, "slice relations resolve to the element type")

	_, err = RelatedModel(classifierBook{}, "title")
	assert.ErrorIs(t, err, ErrNotARelation)

	_, err = RelatedModel(classifierBook{}, "nope")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFindStructField(t *testing.T) {
	// Go field name, json tag and snake_case all resolve.
	for _, name := range []string{"Title", "title"} {
		f, ok := FindStructField(classifierBook{}, name)
		require.True(t, ok, "lookup by %q", name)
		assert.Equal(t, "Title", f.Name)
	}

	f, ok := FindStructField(classifierBook{}, "published_at")
	require.True(t, ok)
	assert.Equal(t, "PublishedAt", f.Name)

	_, ok = FindStructField(classifierBook{}, "missing")
	assert.False(t, ok)

	// Pointer and slice model values are unwrapped.
	f, ok = FindStructField(&classifierBook{}, "title")
	require.True(t, ok)
	assert.Equal(t, "Title", f.Name)
}

func TestFieldValue(t *testing.T) {
	book := &classifierBook{Title: "Gone", PublisherID: 3}

	assert.Equal(t, "Gone", FieldValue(book, "Title"))
	assert.Equal(t, uint(3), FieldValue(book, "PublisherID"))
	assert.Nil(t, FieldValue(book, "Missing"))
	assert.Nil(t, FieldValue((*classifierBook)(nil), "Title"))
}

func TestSetFieldValue(t *testing.T) {
	book := &classifierBook{}

	require.NoError(t, SetFieldValue(book, "Title", "Gone"))
	assert.Equal(t, "Gone", book.Title)

	// JSON numbers arrive as float64 and convert to the column's kind.
	require.NoError(t, SetFieldValue(book, "PublisherID", float64(7)))
	assert.Equal(t, uint(7), book.PublisherID)

	// Numeric strings convert for numeric columns.
	require.NoError(t, SetFieldValue(book, "PublisherID", "9"))
	assert.Equal(t, uint(9), book.PublisherID)

	// RFC3339 strings fill time.Time columns, including pointers.
	require.NoError(t, SetFieldValue(book, "PublishedAt", "2021-06-01T12:00:00Z"))
	require.NotNil(t, book.PublishedAt)
	assert.Equal(t, 2021, book.PublishedAt.Year())

	// Nil zeroes the field.
	require.NoError(t, SetFieldValue(book, "PublishedAt", nil))
	assert.Nil(t, book.PublishedAt)
}

func TestSetFieldValueErrors(t *testing.T) {
	book := &classifierBook{}

	assert.Error(t, SetFieldValue(classifierBook{}, "Title", "x"), "value instances cannot be set")
	assert.Error(t, SetFieldValue(book, "Missing", "x"))
	assert.Error(t, SetFieldValue(book, "Title", 42), "silent number-to-string conversion is refused")
	assert.Error(t, SetFieldValue(book, "PublisherID", "not-a-number"))
	assert.Error(t, SetFieldValue(book, "PublishedAt", "not-a-timestamp"))
}
