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
		intents, err := app.FindCollectionByNameOrId("purchase_intents")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("platform_transactions")

		collection.Fields.Add(
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "intent", CollectionId: intents.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "buyer", CollectionId: users.Id, MaxSelect: 1},
			&core.JSONField{Name: "ticket_ids", MaxSize: 4096},
			&core.NumberField{Name: "gross_amount", Required: true, OnlyInt: true},
			&core.NumberField{Name: "platform_fee", OnlyInt: true},
			&core.NumberField{Name: "seller_payout", OnlyInt: true},
			&core.TextField{Name: "currency", Max: 3},
			&core.SelectField{
				Name:      "provider",
				Values:    []string{"square", "stripe", "paypal", "cashapp", "manual"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.TextField{Name: "provider_payment_id", Required: true, Max: 255},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"pending", "completed", "failed", "refunded"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		// An append-only ledger: one entry per payment, ever.
		collection.AddIndex("idx_transactions_provider_payment", true, "provider, provider_payment_id", "")
		collection.AddIndex("idx_transactions_event", false, "event", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("platform_transactions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
