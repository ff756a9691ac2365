package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		intents, err := app.FindCollectionByNameOrId("purchase_intents")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("issuances")

		collection.Fields.Add(
			&core.RelationField{Name: "intent", CollectionId: intents.Id, MaxSelect: 1, Required: true},
			&core.SelectField{
				Name:      "provider",
				Values:    []string{"square", "stripe", "paypal", "cashapp", "manual"},
				MaxSelect: 1,
			},
			&core.TextField{Name: "provider_payment_id", Max: 255},
			&core.NumberField{Name: "ticket_count", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		// The serialization guard: at most one issuance ever exists per intent,
		// no matter how many times the provider redelivers the webhook.
		collection.AddIndex("idx_issuances_intent", true, "intent", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("issuances")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
