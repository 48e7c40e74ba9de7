package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Table keys. They name the table in both stores.
const (
	TableFilmWork       = "film_work"
	TableGenre          = "genre"
	TablePerson         = "person"
	TableGenreFilmWork  = "genre_film_work"
	TablePersonFilmWork = "person_film_work"
)

// FilmType is the kind of a film work.
type FilmType string

const (
	FilmTypeMovie  FilmType = "movie"
	FilmTypeTVShow FilmType = "tv_show"
)

// Rating bounds, inclusive.
const (
	MinRating = 0.0
	MaxRating = 100.0
)

// now is the value given to missing created/modified columns. It is read once
// per process, so every defaulted row of a run carries the same timestamp.
var now = sync.OnceValue(func() time.Time { return normalizeTime(time.Now()) })

// FilmWork is a movie or TV show.
type FilmWork struct {
	ID           uuid.UUID
	Title        string
	Description  pgtype.Text
	CreationDate pgtype.Date
	Rating       float64
	Type         FilmType
	Created      time.Time
	Modified     time.Time

	auditDefaulted bool
}

// NewFilmWork builds a FilmWork from a raw row.
func NewFilmWork(row RawRow) (FilmWork, error) {
	var f FilmWork
	var err error

	if f.ID, err = ToUUID(row["id"]); err != nil {
		return FilmWork{}, fmt.Errorf("id: %w", err)
	}
	if f.Title, err = requiredText(row, "title"); err != nil {
		return FilmWork{}, err
	}
	if f.Description, err = ToText(row["description"]); err != nil {
		return FilmWork{}, fmt.Errorf("description: %w", err)
	}
	if f.CreationDate, err = ToDate(row["creation_date"]); err != nil {
		return FilmWork{}, fmt.Errorf("creation_date: %w", err)
	}

	rating, _, err := ToFloat(row["rating"])
	if err != nil {
		return FilmWork{}, fmt.Errorf("rating: %w", err)
	}
	if rating < MinRating || rating > MaxRating {
		return FilmWork{}, fmt.Errorf("%w: %v", ErrRatingOutOfRange, rating)
	}
	f.Rating = rating

	if f.Type, err = toFilmType(row["type"]); err != nil {
		return FilmWork{}, err
	}
	if f.Created, f.Modified, f.auditDefaulted, err = auditTimes(row); err != nil {
		return FilmWork{}, err
	}
	return f, nil
}

func toFilmType(v any) (FilmType, error) {
	t, err := ToText(v)
	if err != nil {
		return "", fmt.Errorf("type: %w", err)
	}
	switch FilmType(t.String) {
	case "":
		return FilmTypeMovie, nil
	case FilmTypeMovie, FilmTypeTVShow:
		return FilmType(t.String), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilmType, t.String)
	}
}

func (f FilmWork) Table() string  { return TableFilmWork }
func (f FilmWork) Key() uuid.UUID { return f.ID }

func (f FilmWork) Values() []any {
	return []any{
		PgUUID(f.ID), f.Title, f.Description, f.CreationDate,
		f.Rating, string(f.Type), f.Created, f.Modified,
	}
}

func (f FilmWork) Equal(other Record) bool {
	o, ok := other.(FilmWork)
	if !ok {
		return false
	}
	return f.ID == o.ID &&
		f.Title == o.Title &&
		f.Description == o.Description &&
		sameDate(f.CreationDate, o.CreationDate) &&
		f.Rating == o.Rating &&
		f.Type == o.Type &&
		sameAudit(f.auditDefaulted || o.auditDefaulted, f.Created, o.Created) &&
		sameAudit(f.auditDefaulted || o.auditDefaulted, f.Modified, o.Modified)
}

// Genre is a film genre.
type Genre struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Created     time.Time
	Modified    time.Time

	auditDefaulted bool
}

// NewGenre builds a Genre from a raw row.
func NewGenre(row RawRow) (Genre, error) {
	var g Genre
	var err error

	if g.ID, err = ToUUID(row["id"]); err != nil {
		return Genre{}, fmt.Errorf("id: %w", err)
	}
	if g.Name, err = requiredText(row, "name"); err != nil {
		return Genre{}, err
	}
	if g.Description, err = ToText(row["description"]); err != nil {
		return Genre{}, fmt.Errorf("description: %w", err)
	}
	if g.Created, g.Modified, g.auditDefaulted, err = auditTimes(row); err != nil {
		return Genre{}, err
	}
	return g, nil
}

func (g Genre) Table() string  { return TableGenre }
func (g Genre) Key() uuid.UUID { return g.ID }

func (g Genre) Values() []any {
	return []any{PgUUID(g.ID), g.Name, g.Description, g.Created, g.Modified}
}

func (g Genre) Equal(other Record) bool {
	o, ok := other.(Genre)
	if !ok {
		return false
	}
	return g.ID == o.ID &&
		g.Name == o.Name &&
		g.Description == o.Description &&
		sameAudit(g.auditDefaulted || o.auditDefaulted, g.Created, o.Created) &&
		sameAudit(g.auditDefaulted || o.auditDefaulted, g.Modified, o.Modified)
}

// Person is an actor, writer or director.
type Person struct {
	ID       uuid.UUID
	FullName string
	Created  time.Time
	Modified time.Time

	auditDefaulted bool
}

// NewPerson builds a Person from a raw row.
func NewPerson(row RawRow) (Person, error) {
	var p Person
	var err error

	if p.ID, err = ToUUID(row["id"]); err != nil {
		return Person{}, fmt.Errorf("id: %w", err)
	}
	if p.FullName, err = requiredText(row, "full_name"); err != nil {
		return Person{}, err
	}
	if p.Created, p.Modified, p.auditDefaulted, err = auditTimes(row); err != nil {
		return Person{}, err
	}
	return p, nil
}

func (p Person) Table() string  { return TablePerson }
func (p Person) Key() uuid.UUID { return p.ID }

func (p Person) Values() []any {
	return []any{PgUUID(p.ID), p.FullName, p.Created, p.Modified}
}

func (p Person) Equal(other Record) bool {
	o, ok := other.(Person)
	if !ok {
		return false
	}
	return p.ID == o.ID &&
		p.FullName == o.FullName &&
		sameAudit(p.auditDefaulted || o.auditDefaulted, p.Created, o.Created) &&
		sameAudit(p.auditDefaulted || o.auditDefaulted, p.Modified, o.Modified)
}

// GenreFilmWork links a genre to a film work.
type GenreFilmWork struct {
	ID         uuid.UUID
	GenreID    uuid.UUID
	FilmWorkID uuid.UUID
	Created    time.Time

	auditDefaulted bool
}

// NewGenreFilmWork builds a GenreFilmWork from a raw row.
func NewGenreFilmWork(row RawRow) (GenreFilmWork, error) {
	var g GenreFilmWork
	var err error

	if g.ID, err = ToUUID(row["id"]); err != nil {
		return GenreFilmWork{}, fmt.Errorf("id: %w", err)
	}
	if g.GenreID, err = ToUUID(row["genre_id"]); err != nil {
		return GenreFilmWork{}, fmt.Errorf("genre_id: %w", err)
	}
	if g.FilmWorkID, err = ToUUID(row["film_work_id"]); err != nil {
		return GenreFilmWork{}, fmt.Errorf("film_work_id: %w", err)
	}
	if g.Created, g.auditDefaulted, err = createdTime(row); err != nil {
		return GenreFilmWork{}, err
	}
	return g, nil
}

func (g GenreFilmWork) Table() string  { return TableGenreFilmWork }
func (g GenreFilmWork) Key() uuid.UUID { return g.ID }

func (g GenreFilmWork) Values() []any {
	return []any{PgUUID(g.ID), PgUUID(g.GenreID), PgUUID(g.FilmWorkID), g.Created}
}

func (g GenreFilmWork) Equal(other Record) bool {
	o, ok := other.(GenreFilmWork)
	if !ok {
		return false
	}
	return g.ID == o.ID &&
		g.GenreID == o.GenreID &&
		g.FilmWorkID == o.FilmWorkID &&
		sameAudit(g.auditDefaulted || o.auditDefaulted, g.Created, o.Created)
}

// PersonFilmWork links a person to a film work in a role.
type PersonFilmWork struct {
	ID         uuid.UUID
	PersonID   uuid.UUID
	FilmWorkID uuid.UUID
	Role       string
	Created    time.Time

	auditDefaulted bool
}

// NewPersonFilmWork builds a PersonFilmWork from a raw row.
func NewPersonFilmWork(row RawRow) (PersonFilmWork, error) {
	var p PersonFilmWork
	var err error

	if p.ID, err = ToUUID(row["id"]); err != nil {
		return PersonFilmWork{}, fmt.Errorf("id: %w", err)
	}
	if p.PersonID, err = ToUUID(row["person_id"]); err != nil {
		return PersonFilmWork{}, fmt.Errorf("person_id: %w", err)
	}
	if p.FilmWorkID, err = ToUUID(row["film_work_id"]); err != nil {
		return PersonFilmWork{}, fmt.Errorf("film_work_id: %w", err)
	}
	if p.Role, err = requiredText(row, "role"); err != nil {
		return PersonFilmWork{}, err
	}
	if p.Created, p.auditDefaulted, err = createdTime(row); err != nil {
		return PersonFilmWork{}, err
	}
	return p, nil
}

func (p PersonFilmWork) Table() string  { return TablePersonFilmWork }
func (p PersonFilmWork) Key() uuid.UUID { return p.ID }

func (p PersonFilmWork) Values() []any {
	return []any{PgUUID(p.ID), PgUUID(p.PersonID), PgUUID(p.FilmWorkID), p.Role, p.Created}
}

func (p PersonFilmWork) Equal(other Record) bool {
	o, ok := other.(PersonFilmWork)
	if !ok {
		return false
	}
	return p.ID == o.ID &&
		p.PersonID == o.PersonID &&
		p.FilmWorkID == o.FilmWorkID &&
		p.Role == o.Role &&
		sameAudit(p.auditDefaulted || o.auditDefaulted, p.Created, o.Created)
}

// createdTime reads "created", defaulting to now. defaulted reports whether the
// default was used.
func createdTime(row RawRow) (created time.Time, defaulted bool, err error) {
	if created, err = ToTimestamp(row["created"]); err != nil {
		return time.Time{}, false, fmt.Errorf("created: %w", err)
	}
	if created.IsZero() {
		return now(), true, nil
	}
	return created, false, nil
}

// auditTimes reads "created" and "modified", defaulting either to now.
func auditTimes(row RawRow) (created, modified time.Time, defaulted bool, err error) {
	if created, err = ToTimestamp(row["created"]); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("created: %w", err)
	}
	if modified, err = ToTimestamp(row["modified"]); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("modified: %w", err)
	}
	if created.IsZero() {
		created, defaulted = now(), true
	}
	if modified.IsZero() {
		modified, defaulted = now(), true
	}
	return created, modified, defaulted, nil
}

// sameAudit compares audit timestamps. A record whose source had no audit
// value was stamped at transfer time, so its timestamps match anything.
func sameAudit(defaulted bool, a, b time.Time) bool {
	return defaulted || a.Equal(b)
}

func sameDate(a, b pgtype.Date) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	ay, am, ad := a.Time.Date()
	by, bm, bd := b.Time.Date()
	return ay == by && am == bm && ad == bd
}
