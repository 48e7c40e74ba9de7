package tables

import "github.com/JonMunkholm/movies-etl/internal/core"

func init() {
	registerFilmWork()
	registerGenre()
	registerPerson()
}

func registerFilmWork() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.TableFilmWork,
			Label: "Film works",
			Order: 1,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Required: true},
			{Name: "title", Required: true},
			{Name: "description"},
			{Name: "creation_date"},
			{Name: "rating"},
			{Name: "type"},
			createdField,
			modifiedField,
		},
		Build: build(core.NewFilmWork),
	})
}

func registerGenre() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.TableGenre,
			Label: "Genres",
			Order: 2,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Required: true},
			{Name: "name", Required: true},
			{Name: "description"},
			createdField,
			modifiedField,
		},
		Build: build(core.NewGenre),
	})
}

func registerPerson() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.TablePerson,
			Label: "People",
			Order: 3,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Required: true},
			{Name: "full_name", Required: true},
			createdField,
			modifiedField,
		},
		Build: build(core.NewPerson),
	})
}
