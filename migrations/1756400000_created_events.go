package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("events")

		collection.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 200},
			&core.TextField{Name: "venue", Max: 200},
			&core.DateField{Name: "starts_at"},
			&core.NumberField{Name: "capacity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "sold", OnlyInt: true},
			&core.NumberField{Name: "price", OnlyInt: true},
			&core.RelationField{Name: "organizer", CollectionId: users.Id, MaxSelect: 1},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"upcoming", "live", "cancelled", "completed"},
				MaxSelect: 1,
			},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_events_organizer", false, "organizer", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
