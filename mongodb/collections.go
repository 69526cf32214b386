package mongodb

const (
	// IdentitiesCollection holds local and federated identities.
	IdentitiesCollection = "users"
)
