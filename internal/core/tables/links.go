package tables

import "github.com/JonMunkholm/movies-etl/internal/core"

func init() {
	registerGenreFilmWork()
	registerPersonFilmWork()
}

// Junction tables have no modified column.

func registerGenreFilmWork() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:         core.TableGenreFilmWork,
			Label:       "Genre links",
			Order:       4,
			ConflictKey: []string{"genre_id", "film_work_id"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Required: true},
			{Name: "genre_id", Required: true},
			{Name: "film_work_id", Required: true},
			createdField,
		},
		Build: build(core.NewGenreFilmWork),
	})
}

func registerPersonFilmWork() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:         core.TablePersonFilmWork,
			Label:       "Person roles",
			Order:       5,
			ConflictKey: []string{"person_id", "film_work_id", "role"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Required: true},
			{Name: "person_id", Required: true},
			{Name: "film_work_id", Required: true},
			{Name: "role", Required: true},
			createdField,
		},
		Build: build(core.NewPersonFilmWork),
	})
}
