package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("orphaned_confirmations")

		collection.Fields.Add(
			&core.SelectField{
				Name:      "provider",
				Values:    []string{"square", "stripe", "paypal", "cashapp", "manual"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.TextField{Name: "provider_payment_id", Required: true, Max: 255},
			&core.NumberField{Name: "amount", OnlyInt: true},
			&core.TextField{Name: "currency", Max: 3},
			&core.JSONField{Name: "raw_payload", MaxSize: 65536},
			&core.NumberField{Name: "delivery_count", OnlyInt: true},
			&core.DateField{Name: "first_seen_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_orphans_provider_payment", true, "provider, provider_payment_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("orphaned_confirmations")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
