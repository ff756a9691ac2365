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
		intents, err := app.FindCollectionByNameOrId("purchase_intents")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("flagged_payments")

		collection.Fields.Add(
			&core.SelectField{
				Name:      "provider",
				Values:    []string{"square", "stripe", "paypal", "cashapp", "manual"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.TextField{Name: "provider_payment_id", Required: true, Max: 255},
			&core.RelationField{Name: "intent", CollectionId: intents.Id, MaxSelect: 1},
			&core.SelectField{
				Name:      "reason",
				Values:    []string{"amount_mismatch", "capacity_exceeded"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.NumberField{Name: "expected_amount", OnlyInt: true},
			&core.NumberField{Name: "received_amount", OnlyInt: true},
			&core.BoolField{Name: "resolved"},
			&core.TextField{Name: "resolution_note", Max: 500},
			&core.RelationField{Name: "resolved_by", CollectionId: users.Id, MaxSelect: 1},
			&core.DateField{Name: "resolved_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_flags_provider_payment", false, "provider, provider_payment_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("flagged_payments")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
