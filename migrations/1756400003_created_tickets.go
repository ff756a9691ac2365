package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		intents, err := app.FindCollectionByNameOrId("purchase_intents")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "intent", CollectionId: intents.Id, MaxSelect: 1, Required: true},
			&core.NumberField{Name: "number", Required: true, OnlyInt: true},
			&core.TextField{Name: "code", Required: true, Max: 12},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"valid", "used", "refunded", "cancelled"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.NumberField{Name: "amount", OnlyInt: true},
			&core.TextField{Name: "seat_label", Max: 100},
			&core.DateField{Name: "issued_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_code", true, "code", "")
		collection.AddIndex("idx_tickets_event_number", true, "event, number", "")
		collection.AddIndex("idx_tickets_intent", false, "intent", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
