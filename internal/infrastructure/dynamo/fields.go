package dynamo

// Attribute, key and index names shared by the repos and Bootstrap.
const (
	fieldEmail      = "email"
	fieldCode       = "code"
	fieldExpiresAt  = "expires_at"
	fieldActivityID = "activity_id"
	fieldAccountID  = "account_id"
	fieldUpdatedAt  = "updated_at"

	indexAccountID = "account_id-index"
)
