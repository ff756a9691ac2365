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
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("purchase_intents")

		collection.Fields.Add(
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "buyer", CollectionId: users.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "seller", CollectionId: users.Id, MaxSelect: 1},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "unit_amount", OnlyInt: true},
			&core.TextField{Name: "currency", Max: 3},
			&core.TextField{Name: "referral_code", Max: 50},
			&core.TextField{Name: "table_label", Max: 100},
			&core.TextField{Name: "waiting_list_slot", Max: 100},
			&core.SelectField{
				Name:      "provider",
				Values:    []string{"square", "stripe", "paypal", "cashapp", "manual"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.TextField{Name: "provider_payment_id", Required: true, Max: 255},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"pending", "consumed", "expired", "cancelled"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.DateField{Name: "expires_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One intent per provider payment id; this is the join point the
		// webhook pipeline resolves through.
		collection.AddIndex("idx_intents_provider_payment", true, "provider, provider_payment_id", "")
		// At most one unconsumed intent per (event, buyer, slot); the store's
		// pre-check only makes the common duplicate cheap.
		collection.AddIndex("idx_intents_pending_slot", true, "event, buyer, waiting_list_slot", "status = 'pending'")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("purchase_intents")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
